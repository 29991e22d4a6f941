package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/jonwraymond/fetchops/auth"
	"github.com/jonwraymond/fetchops/client"
	"github.com/jonwraymond/fetchops/config"
	"github.com/jonwraymond/fetchops/observe"
	"github.com/jonwraymond/fetchops/request"
	"github.com/jonwraymond/fetchops/secret"
)

// errUnsuccessful is returned after printing a failed or canceled outcome.
var errUnsuccessful = errors.New("fetchops: request did not succeed")

type output struct {
	Outcome    string            `json:"outcome"`
	Status     int               `json:"status,omitempty"`
	Data       any               `json:"data,omitempty"`
	Error      string            `json:"error,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Retries    int               `json:"retries"`
	Cached     bool              `json:"cached,omitempty"`
	Duration   string            `json:"duration,omitempty"`
	RequestKey string            `json:"request_key"`
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	opts := &Options{}
	if _, err := flags.ParseArgs(opts, args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.Base != "" {
		cfg.BaseURL = opts.Base
	}
	if opts.Snapshot != "" {
		cfg.SnapshotURL = opts.Snapshot
	}
	if opts.RetryTime > 0 {
		cfg.RetryTime = opts.RetryTime
	}
	cfg.LogLevel = opts.LogLevel

	headers, err := pairs("header", opts.Headers)
	if err != nil {
		return err
	}
	params, err := anyPairs("param", opts.Params)
	if err != nil {
		return err
	}
	query, err := anyPairs("query", opts.Query)
	if err != nil {
		return err
	}
	data, err := body(opts.Data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	logger := observe.NewLoggerWithWriter(cfg.LogLevel, stderr)
	secrets, err := secret.DefaultRegistry.Resolver(true, opts.SecretProviders...)
	if err != nil {
		return fmt.Errorf("--secret-provider: %w", err)
	}
	authn, err := authenticator(ctx, opts, secrets)
	if err != nil {
		return err
	}

	clientOpts := []client.Option{client.WithLogger(logger), client.WithSecretResolver(secrets)}
	if authn != nil {
		clientOpts = append(clientOpts, client.WithAuthenticator(authn))
	}
	cl, err := client.Open(ctx, cfg, clientOpts...)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer done()
		if closeErr := cl.Close(closeCtx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	req := cl.CreateRequest(request.Options{
		Endpoint:  opts.Endpoint,
		Method:    opts.Method,
		Headers:   headers,
		Auth:      authn != nil,
		Retry:     opts.Retry,
		Queued:    opts.Queued,
		CacheTime: opts.CacheTime,
	}).SetParams(params).SetQueryParams(query).SetData(data)

	var res client.FetchResult
	if opts.Fetch {
		res, err = cl.Fetch(ctx, req)
	} else {
		res.Result, err = cl.Send(ctx, req)
	}
	if err != nil {
		return err
	}

	logger.Debug(ctx, "request finished",
		observe.F("request.key", req.RequestKey()),
		observe.F("outcome", res.Response.Outcome.String()),
		observe.F("cached", res.Cached))

	if err := writeOutput(stdout, req, res); err != nil {
		return err
	}
	if !res.Response.IsSuccess() {
		return errUnsuccessful
	}
	return nil
}

func authenticator(ctx context.Context, opts *Options, secrets *secret.Resolver) (auth.Authenticator, error) {
	var auths []auth.Authenticator
	if opts.Bearer != "" {
		token, err := secrets.ResolveValue(ctx, opts.Bearer)
		if err != nil {
			return nil, fmt.Errorf("--bearer: %w", err)
		}
		auths = append(auths, auth.NewStaticTokenAuthenticator(token))
	}
	if opts.JWTKey != "" {
		key, err := secrets.ResolveValue(ctx, opts.JWTKey)
		if err != nil {
			return nil, fmt.Errorf("--jwt-key: %w", err)
		}
		auths = append(auths, auth.NewJWTSigner(auth.JWTConfig{
			Key:     []byte(key),
			Issuer:  opts.JWTIssuer,
			Subject: opts.JWTSubject,
		}))
	}
	if opts.APIKey != "" {
		auths = append(auths, auth.NewAPIKeyAuthenticator(auth.APIKeyConfig{Key: opts.APIKey}, secrets))
	}

	switch len(auths) {
	case 0:
		return nil, nil
	case 1:
		return auths[0], nil
	default:
		return auth.NewCompositeAuthenticator(auths...), nil
	}
}

func writeOutput(w io.Writer, req request.Request, res client.FetchResult) error {
	out := output{
		Outcome:    res.Response.Outcome.String(),
		Status:     res.Response.Status,
		Data:       res.Response.Data,
		Headers:    res.Response.Headers,
		Retries:    res.Retries,
		Cached:     res.Cached,
		RequestKey: req.RequestKey(),
	}
	if res.Response.Err != nil {
		out.Error = res.Response.Err.Error()
	}
	if res.Response.Duration > 0 {
		out.Duration = res.Response.Duration.String()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
