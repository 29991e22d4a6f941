// Package client assembles a ready-to-use fetchops engine.
//
// A Client owns one abort registry, one response cache and one dispatcher.
// Descriptors created with CreateRequest inherit the client's base URL,
// default headers and request defaults, and abort through the client's
// dispatcher.
//
//	c, err := client.Open(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer c.Close(ctx)
//
//	req := c.CreateRequest(request.Options{Endpoint: "/users/:id"}).
//	    SetParams(map[string]any{"id": 7})
//	res, err := c.Send(ctx, req)
package client
