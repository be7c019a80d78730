package workmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkIDDeterministic(t *testing.T) {
	a := WorkID("The Great Work", "Jane Doe")
	b := WorkID("The Great Work", "Jane Doe")
	assert.Equal(t, a, b)
	assert.Len(t, a, 10)
}

func TestWorkIDNormalizesCase(t *testing.T) {
	a := WorkID("The Great Work", "Jane Doe")
	b := WorkID("THE GREAT WORK", "jane doe")
	assert.Equal(t, a, b)
}

func TestWorkIDDistinguishesInputs(t *testing.T) {
	a := WorkID("Title One", "Author A")
	b := WorkID("Title Two", "Author A")
	assert.NotEqual(t, a, b)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"colon and slash dropped", "Title: Part/One", "Title_PartOne"},
		{"already clean", "clean_name", "clean_name"},
		{"question marks dropped", "What? Now?", "What_Now"},
		{"empty falls back to untitled", "???", "untitled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestWorkDirNameIncludesEntryID(t *testing.T) {
	dir := WorkDirName("E0001", "Some Title")
	assert.Contains(t, dir, "e_0001")
}
