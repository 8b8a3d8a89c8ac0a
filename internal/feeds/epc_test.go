package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnergyClient_Certificates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/domestic/search", r.URL.Path)
		assert.Equal(t, "YO17HH", r.URL.Query().Get("postcode"))
		assert.Equal(t, "Basic dGVzdDpzZWNyZXQ=", r.Header.Get("Authorization"))
		w.Write([]byte(`{"rows":[{"construction-age-band":"England and Wales: 1996-2002","property-type":"House"}]}`))
	}))
	defer srv.Close()

	e := NewEnergyClient(srv.URL, "dGVzdDpzZWNyZXQ=", srv.Client())
	certs, err := e.Certificates(context.Background(), "yo1 7hh")
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "England and Wales: 1996-2002", certs[0].AgeBand)
	assert.Equal(t, "House", certs[0].PropertyType)
}

func TestEnergyClient_RetriesOutwardCode(t *testing.T) {
	var postcodes []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pc := r.URL.Query().Get("postcode")
		postcodes = append(postcodes, pc)
		if pc == "YO1" {
			w.Write([]byte(`{"rows":[{"construction-age-band":"England and Wales: 1930-1949","property-type":"Flat"}]}`))
			return
		}
		// unknown full postcode answers with an empty body
	}))
	defer srv.Close()

	e := NewEnergyClient(srv.URL, "", srv.Client())
	certs, err := e.Certificates(context.Background(), "YO1 7HH")
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, []string{"YO17HH", "YO1"}, postcodes)
}

func TestEnergyClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := NewEnergyClient(srv.URL, "", srv.Client())
	_, err := e.Certificates(context.Background(), "YO1 7HH")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
