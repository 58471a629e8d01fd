package masterproduct

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameBrandQueryExcludesRetiredMasters(t *testing.T) {
	query, args := buildNameBrandQuery("Кетчуп Heinz Томатный 570г", "Heinz", true)

	assert.True(t, strings.Contains(query, "status NOT IN"), "exact lookup must skip retired masters: %s", query)
	assert.Contains(t, args, "merged")
	assert.Contains(t, args, "inactive")
}

func TestNameBrandQueryConflictRereadSeesAllStatuses(t *testing.T) {
	query, args := buildNameBrandQuery("Кетчуп Heinz Томатный 570г", "Heinz", false)

	assert.False(t, strings.Contains(query, "status"), "conflict re-read must match the row regardless of status: %s", query)
	assert.NotContains(t, args, "merged")
}
