package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM donations":                         "SELECT",
		"  insert into donations (id) values ($1)":        "INSERT",
		"WITH d AS (SELECT 1) SELECT * FROM d":            "SELECT",
		"(UPDATE donations SET distribution_status = $1)": "UPDATE",
		"":                                                "UNKNOWN",
		"VACUUM":                                          "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}
