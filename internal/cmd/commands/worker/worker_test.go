package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellum-io/vellum/internal/cmd/commands/stage"
)

func TestStageOrderCoversEveryBuilder(t *testing.T) {
	builders := stage.Builders()
	require.Len(t, stageOrder, len(builders))

	seen := map[string]bool{}
	for _, name := range stageOrder {
		assert.Contains(t, builders, name)
		assert.False(t, seen[name], "duplicate stage %s", name)
		seen[name] = true
	}
}
