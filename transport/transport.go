// Package transport defines the boundary between the dispatcher and the
// code that actually talks to a backend.
package transport

import (
	"context"

	"github.com/jonwraymond/fetchops/request"
	"github.com/jonwraymond/fetchops/response"
)

// Adapter performs one execution of a request descriptor.
//
// Implementations must honor ctx: when it is canceled they return a
// response with the Canceled outcome. They never panic on backend errors;
// failures are reported as Failure responses.
type Adapter interface {
	Execute(ctx context.Context, req request.Request) response.Response
}

// AdapterFunc adapts a function to Adapter.
type AdapterFunc func(ctx context.Context, req request.Request) response.Response

// Execute calls f.
func (f AdapterFunc) Execute(ctx context.Context, req request.Request) response.Response {
	return f(ctx, req)
}

// Static returns an adapter that always answers res. Handy for tests and
// for offline fixtures.
func Static(res response.Response) Adapter {
	return AdapterFunc(func(ctx context.Context, _ request.Request) response.Response {
		if ctx.Err() != nil {
			return response.Cancel(context.Cause(ctx))
		}
		return res
	})
}
