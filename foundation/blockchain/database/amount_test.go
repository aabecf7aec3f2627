package database_test

import (
	"encoding/json"
	"testing"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want database.Amount
		str  string
	}{
		{in: "0", want: 0, str: "0"},
		{in: "10", want: 1_000_000_000, str: "10"},
		{in: "0.5", want: 50_000_000, str: "0.5"},
		{in: ".25", want: 25_000_000, str: "0.25"},
		{in: "3.14159265", want: 314_159_265, str: "3.14159265"},
		{in: "5.00000001", want: 500_000_001, str: "5.00000001"},
		{in: " 7 ", want: 700_000_000, str: "7"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := database.ParseAmount(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.str, got.String())
		})
	}
}

func TestParseAmountInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "1.", "1.123456789", "1.2.3", "184467440738"} {
		t.Run(in, func(t *testing.T) {
			_, err := database.ParseAmount(in)
			assert.Error(t, err)
		})
	}
}

func TestAmountJSON(t *testing.T) {
	type payload struct {
		Amount database.Amount `json:"amount"`
	}

	data, err := json.Marshal(payload{Amount: database.MustParseAmount("12.5")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"12.5"}`, string(data))

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"0.00000001"}`), &p))
	assert.Equal(t, database.Amount(1), p.Amount)

	assert.Error(t, json.Unmarshal([]byte(`{"amount":"1e5"}`), &p))
}
