package inventory

import (
	"context"

	"golang.org/x/sync/singleflight"
)

var availabilityGroup singleflight.Group

func singleflightAvailability(ctx context.Context, key string, fn func(context.Context) (Availability, error)) (Availability, error) {
	resultChan := availabilityGroup.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return Availability{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return Availability{}, res.Err
		}
		return res.Val.(Availability), nil
	}
}
