package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePullRequestURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantOwner  string
		wantRepo   string
		wantNumber int
		wantErr    bool
	}{
		{
			name:       "standard URL",
			url:        "https://github.com/acme/widgets/pull/123",
			wantOwner:  "acme",
			wantRepo:   "widgets",
			wantNumber: 123,
		},
		{
			name:       "trailing slash",
			url:        "https://github.com/acme/widgets/pull/7/",
			wantOwner:  "acme",
			wantRepo:   "widgets",
			wantNumber: 7,
		},
		{
			name:       "http scheme",
			url:        "http://github.com/acme/widgets/pull/1",
			wantOwner:  "acme",
			wantRepo:   "widgets",
			wantNumber: 1,
		},
		{name: "issue URL", url: "https://github.com/acme/widgets/issues/123", wantErr: true},
		{name: "files tab", url: "https://github.com/acme/widgets/pull/123/files", wantErr: true},
		{name: "missing number", url: "https://github.com/acme/widgets/pull/", wantErr: true},
		{name: "zero number", url: "https://github.com/acme/widgets/pull/0", wantErr: true},
		{name: "not github", url: "https://gitlab.com/acme/widgets/pull/123", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, number, err := ParsePullRequestURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
			assert.Equal(t, tt.wantNumber, number)
		})
	}
}
