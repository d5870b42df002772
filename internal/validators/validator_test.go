package validators

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/threadline/backend/internal/models"
)

func TestValidate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name  string
		input interface{}
		ok    bool
	}{
		{"valid thread", models.CreateThreadRequest{Content: "hi", Visibility: models.VisibilityPublic}, true},
		{"empty content", models.CreateThreadRequest{Visibility: models.VisibilityPublic}, false},
		{"unknown visibility", models.CreateThreadRequest{Content: "hi", Visibility: "FRIENDS"}, false},
		{"bad parent id", models.CreateThreadRequest{Content: "hi", Visibility: models.VisibilityPublic, ParentID: "xyz"}, false},
		{"empty feed cursor", models.FeedRequest{}, true},
		{"bad cursor id", models.FeedRequest{ExcludedIDs: []string{"nope"}}, false},
		{"page too large", models.FeedRequest{PageSize: 51}, false},
		{"empty read batch", models.MarkReadRequest{}, false},
		{"read batch", models.MarkReadRequest{IDs: []uint{1, 2}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var he *echo.HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, http.StatusBadRequest, he.Code)
		})
	}
}
