package quota

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "report.pdf", "report.pdf"},
		{"accents", "Relatório Técnico.PDF", "Relatorio_Tecnico.pdf"},
		{"runs of specials", "a  &&  b!!.txt", "a_b.txt"},
		{"trims underscores", "__draft__.docx", "draft.docx"},
		{"keeps dash", "v1-final_copy.zip", "v1-final_copy.zip"},
		{"no extension", "README", "README"},
		{"dotfile", ".env", "env"},
		{"strips directories", "../../etc/passwd", "passwd"},
		{"only unsafe", "日本.pdf", "file.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFileName(tt.in))
		})
	}
}

func TestSanitizeFileName_Truncates(t *testing.T) {
	got := SanitizeFileName(strings.Repeat("a", 150) + ".Tar")
	assert.Equal(t, strings.Repeat("a", 100)+".tar", got)
}
