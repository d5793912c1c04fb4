package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespace(t *testing.T) {
	tests := []struct {
		name    string
		fileKey string
		want    string
		wantErr bool
	}{
		{"ascii unchanged", "uploads/1/1700000000000-report.pdf", "uploads/1/1700000000000-report.pdf", false},
		{"strips accents", "uploads/1/résumé.pdf", "uploads/1/rsum.pdf", false},
		{"strips cjk", "uploads/2/报告-q3.pdf", "uploads/2/-q3.pdf", false},
		{"only non-ascii", "报告", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Namespace(tt.fileKey)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidNamespace)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNamespace_Deterministic(t *testing.T) {
	a, err := Namespace("uploads/7/naïve.pdf")
	require.NoError(t, err)
	b, err := Namespace("uploads/7/naïve.pdf")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
