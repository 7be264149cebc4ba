package functions

import (
	"context"
	"time"

	"github.com/aiqtoolkit/aiq"
)

func init() {
	aiq.Register_Function("current_datetime", func(settings map[string]any, b *aiq.Builder) (*aiq.Function, error) {
		return aiq.From_Fn(
			"current_datetime",
			"Returns the current date and time in human readable format.",
			func(ctx context.Context, input string) (string, error) {
				return time.Now().Format("2006-01-02 15:04:05"), nil
			},
		), nil
	})
}
