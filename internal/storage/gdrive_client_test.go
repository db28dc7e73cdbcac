package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFolderQuery(t *testing.T) {
	tests := []struct {
		name     string
		folder   string
		parentID string
		want     string
	}{
		{
			name:   "root folder",
			folder: "Abacus Reports",
			want:   "name='Abacus Reports' and mimeType='application/vnd.google-apps.folder' and trashed=false",
		},
		{
			name:     "dated child",
			folder:   "2025",
			parentID: "abc123",
			want:     "'abc123' in parents and name='2025' and mimeType='application/vnd.google-apps.folder' and trashed=false",
		},
		{
			name:   "quote in name",
			folder: "Bob's Reports",
			want:   `name='Bob\'s Reports' and mimeType='application/vnd.google-apps.folder' and trashed=false`,
		},
		{
			name:   "backslash in name",
			folder: `Q1\Q2`,
			want:   `name='Q1\\Q2' and mimeType='application/vnd.google-apps.folder' and trashed=false`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, folderQuery(tt.folder, tt.parentID))
		})
	}
}
