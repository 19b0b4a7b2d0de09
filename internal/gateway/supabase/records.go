package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"devplan/internal/gateway"
)

var _ gateway.Gateway = (*Client)(nil)

// Select runs GET /rest/v1/{table} and decodes the JSON array into dest.
func (c *Client) Select(ctx context.Context, table string, q gateway.Query, dest any) error {
	req, err := newJSONRequest(http.MethodGet, c.tableURL(table, q, true), nil)
	if err != nil {
		return &gateway.StoreError{Op: "select", Table: table, Err: err}
	}
	resp, err := c.call(ctx, "select", table, req)
	if err != nil {
		return err
	}
	return decode("select", table, resp.body, dest)
}

// Insert posts row and refreshes it from the returned representation.
func (c *Client) Insert(ctx context.Context, table string, row any) error {
	req, err := newJSONRequest(http.MethodPost, c.tableURL(table, gateway.Query{}, false), row)
	if err != nil {
		return &gateway.StoreError{Op: "insert", Table: table, Err: err}
	}
	req.Header.Set("Prefer", "return=representation")
	resp, err := c.call(ctx, "insert", table, req)
	if err != nil {
		return err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(resp.body, &rows); err != nil {
		return &gateway.StoreError{Op: "insert", Table: table, Status: resp.status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(rows) == 0 {
		return &gateway.StoreError{Op: "insert", Table: table, Status: resp.status, Err: fmt.Errorf("no row returned")}
	}
	return decode("insert", table, rows[0], row)
}

// Update runs PATCH with the query filters; all fields are applied in one request.
func (c *Client) Update(ctx context.Context, table string, q gateway.Query, fields map[string]any, dest any) error {
	req, err := newJSONRequest(http.MethodPatch, c.tableURL(table, q, false), fields)
	if err != nil {
		return &gateway.StoreError{Op: "update", Table: table, Err: err}
	}
	req.Header.Set("Prefer", "return=representation")
	resp, err := c.call(ctx, "update", table, req)
	if err != nil {
		return err
	}
	return decode("update", table, resp.body, dest)
}

// Delete runs DELETE with the query filters and decodes the removed rows.
func (c *Client) Delete(ctx context.Context, table string, q gateway.Query, dest any) error {
	req, err := newJSONRequest(http.MethodDelete, c.tableURL(table, q, false), nil)
	if err != nil {
		return &gateway.StoreError{Op: "delete", Table: table, Err: err}
	}
	req.Header.Set("Prefer", "return=representation")
	resp, err := c.call(ctx, "delete", table, req)
	if err != nil {
		return err
	}
	return decode("delete", table, resp.body, dest)
}

// Ping checks that the REST endpoint answers with the configured key.
func (c *Client) Ping(ctx context.Context) error {
	req, err := newJSONRequest(http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return &gateway.StoreError{Op: "ping", Err: err}
	}
	_, err = c.call(ctx, "ping", "", req)
	return err
}

func (c *Client) tableURL(table string, q gateway.Query, withOrder bool) string {
	u := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	params := encodeQuery(q, withOrder)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// encodeQuery renders filters as column=op.value pairs (PostgREST syntax).
func encodeQuery(q gateway.Query, withOrder bool) url.Values {
	params := url.Values{}
	for _, f := range q.Filters {
		if f.Op == gateway.OpIsNull {
			params.Add(f.Column, "is.null")
			continue
		}
		params.Add(f.Column, string(f.Op)+"."+formatValue(f.Value))
	}
	if !withOrder {
		return params
	}
	if len(q.Orders) > 0 {
		parts := make([]string, 0, len(q.Orders))
		for _, o := range q.Orders {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		params.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return params
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "null"
		}
		return formatValue(rv.Elem().Interface())
	}
	return fmt.Sprintf("%v", v)
}

func decode(op, table string, body []byte, dest any) error {
	if dest == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return &gateway.StoreError{Op: op, Table: table, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
