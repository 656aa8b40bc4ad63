package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tradeboard/gateway/internal/session"
)

type loginOptions struct {
	Conn connOptions
}

type callOptions struct {
	Conn   connOptions
	Method string
	Path   string
	Params string
	Data   string
	Query  string
	Raw    bool
}

func parseLoginFlags(defaults cliConfig, args []string, errOut io.Writer) (loginOptions, error) {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var opts loginOptions
	registerConnFlags(fs, defaults, &opts.Conn)

	if err := fs.Parse(args); err != nil {
		return loginOptions{}, err
	}
	if err := validateConnOptions(opts.Conn); err != nil {
		return loginOptions{}, err
	}
	return opts, nil
}

func parseCallFlags(defaults cliConfig, args []string, errOut io.Writer) (callOptions, error) {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var opts callOptions
	registerConnFlags(fs, defaults, &opts.Conn)
	fs.StringVar(&opts.Method, "method", http.MethodGet, "HTTP method: GET, POST, PUT, PATCH or DELETE")
	fs.StringVar(&opts.Path, "path", "", "Backend path below the proxy, e.g. v1/positions (required)")
	fs.StringVar(&opts.Params, "params", "", "Query string, e.g. symbol=BTC&limit=5")
	fs.StringVar(&opts.Data, "data", "", "JSON request body")
	fs.StringVar(&opts.Query, "query", "", "JMESPath expression applied to the JSON response")
	fs.BoolVar(&opts.Raw, "raw", false, "Print the response body unformatted")

	if err := fs.Parse(args); err != nil {
		return callOptions{}, err
	}

	opts.Method = strings.ToUpper(strings.TrimSpace(opts.Method))
	opts.Path = strings.TrimPrefix(strings.TrimSpace(opts.Path), "/")
	if err := validateCallOptions(opts); err != nil {
		return callOptions{}, err
	}
	return opts, nil
}

func validateCallOptions(opts callOptions) error {
	if err := validateConnOptions(opts.Conn); err != nil {
		return err
	}
	if opts.Path == "" {
		return errors.New("--path is required")
	}
	switch opts.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("unsupported method %q", opts.Method)
	}
	if opts.Data != "" && !json.Valid([]byte(opts.Data)) {
		return errors.New("--data must be valid JSON")
	}
	if opts.Data != "" && opts.Method == http.MethodGet {
		return errors.New("--data cannot be used with GET")
	}
	if _, err := url.ParseQuery(opts.Params); err != nil {
		return fmt.Errorf("parse --params: %w", err)
	}
	return nil
}

func runLogin(cmdCtx *commandContext, args []string) error {
	opts, err := parseLoginFlags(cmdCtx.Defaults, args, cmdCtx.Err)
	if err != nil {
		return err
	}

	kit, err := newSessionKit(opts.Conn, cmdCtx.Logger, cmdCtx.Err)
	if err != nil {
		return err
	}
	defer kit.close(cmdCtx.Ctx)

	if err := kit.signIn(cmdCtx.Ctx, opts.Conn); err != nil {
		return err
	}

	snap := kit.store.Snapshot()
	return writef(cmdCtx.Out, "state: %s\nexpires_at: %s\n",
		kit.ctrl.State(), snap.ExpiresAt.UTC().Format(time.RFC3339))
}

func runCall(cmdCtx *commandContext, args []string) error {
	opts, err := parseCallFlags(cmdCtx.Defaults, args, cmdCtx.Err)
	if err != nil {
		return err
	}

	kit, err := newSessionKit(opts.Conn, cmdCtx.Logger, cmdCtx.Err)
	if err != nil {
		return err
	}
	defer kit.close(cmdCtx.Ctx)

	if err := kit.signIn(cmdCtx.Ctx, opts.Conn); err != nil {
		return err
	}

	req := session.APIRequest{Method: opts.Method, Path: opts.Path}
	if opts.Params != "" {
		// Validated by parseCallFlags.
		req.Query, _ = url.ParseQuery(opts.Params)
	}
	if opts.Data != "" {
		req.Body = json.RawMessage(opts.Data)
	}

	resp, callErr := kit.api.Do(cmdCtx.Ctx, req)
	if resp != nil {
		if printErr := printResponse(cmdCtx.Out, resp.Body, opts); printErr != nil && callErr == nil {
			return printErr
		}
	}
	if callErr != nil {
		return fmt.Errorf("call %s %s: %w", opts.Method, opts.Path, callErr)
	}
	return nil
}

func printResponse(w io.Writer, body []byte, opts callOptions) error {
	if opts.Query != "" {
		projected, err := session.Project(body, opts.Query)
		if err != nil {
			return fmt.Errorf("apply --query: %w", err)
		}
		out, err := json.MarshalIndent(projected, "", "  ")
		if err != nil {
			return fmt.Errorf("encode projection: %w", err)
		}
		return writef(w, "%s\n", out)
	}

	if opts.Raw || !json.Valid(body) {
		_, err := w.Write(body)
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return err
	}
	return writef(w, "%s\n", buf.Bytes())
}
