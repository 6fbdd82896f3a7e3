package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/uk030621/MultiAdaptDB/internal/domain"
)

func doSlotsList(ctx context.Context, cfg cliConfig, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "databases.list", map[string]any{}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodGet, "/api/databases", nil, out)
}

func doSlotRename(ctx context.Context, cfg cliConfig, slot int, name string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "databases.rename", map[string]any{"actor": cfg.Actor, "index": slot, "name": name}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPost, "/api/databases/rename", map[string]any{"index": slot, "name": name}, out)
}

func doFieldsList(ctx context.Context, cfg cliConfig, slot int, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "fields.list", map[string]any{"slot": slot}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodGet, slotPath(slot, "/fields"), nil, out)
}

func doFieldCreate(ctx context.Context, cfg cliConfig, slot int, def domain.FieldDefinition, out any) error {
	payload := map[string]any{
		"name":    def.Name,
		"label":   def.Label,
		"type":    string(def.Type),
		"options": def.Options,
		"order":   def.Order,
	}
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		payload["actor"] = cfg.Actor
		payload["slot"] = slot
		return client.call(ctx, "fields.create", payload, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPost, slotPath(slot, "/fields"), payload, out)
}

func doFieldUpdate(ctx context.Context, cfg cliConfig, slot int, id string, patch map[string]any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		payload := map[string]any{"actor": cfg.Actor, "slot": slot, "id": id}
		for k, v := range patch {
			payload[k] = v
		}
		return client.call(ctx, "fields.update", payload, nil)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	payload := map[string]any{"id": id}
	for k, v := range patch {
		payload[k] = v
	}
	return client.request(ctx, http.MethodPut, slotPath(slot, "/fields"), payload, nil)
}

func doFieldDelete(ctx context.Context, cfg cliConfig, slot int, id string) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "fields.delete", map[string]any{"actor": cfg.Actor, "slot": slot, "id": id}, nil)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodDelete, slotPath(slot, "/fields"), map[string]any{"id": id}, nil)
}

func doFieldsReorder(ctx context.Context, cfg cliConfig, slot int, ids []string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "fields.reorder", map[string]any{"actor": cfg.Actor, "slot": slot, "ids": ids}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPost, slotPath(slot, "/fields/reorder"), ids, out)
}

func doRecordsList(ctx context.Context, cfg cliConfig, slot int, q string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "records.list", map[string]any{"slot": slot, "q": q}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	path := slotPath(slot, "/records")
	if q != "" {
		path += "?q=" + url.QueryEscape(q)
	}
	return client.request(ctx, http.MethodGet, path, nil, out)
}

func doRecordCreate(ctx context.Context, cfg cliConfig, slot int, attrs map[string]any, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "records.create", map[string]any{"actor": cfg.Actor, "slot": slot, "attrs": attrs}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPost, slotPath(slot, "/records"), attrs, out)
}

func doRecordUpdate(ctx context.Context, cfg cliConfig, slot int, id string, attrs map[string]any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "records.update", map[string]any{"actor": cfg.Actor, "slot": slot, "id": id, "attrs": attrs}, nil)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	payload := map[string]any{"id": id}
	for k, v := range attrs {
		payload[k] = v
	}
	return client.request(ctx, http.MethodPut, slotPath(slot, "/records"), payload, nil)
}

func doRecordDelete(ctx context.Context, cfg cliConfig, slot int, id string) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "records.delete", map[string]any{"actor": cfg.Actor, "slot": slot, "id": id}, nil)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodDelete, slotPath(slot, "/records"), map[string]any{"id": id}, nil)
}

func doRecordsPurge(ctx context.Context, cfg cliConfig, slot int) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "records.purge", map[string]any{"actor": cfg.Actor, "slot": slot}, nil)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPost, slotPath(slot, "/records/purge"), map[string]any{}, nil)
}

func doSyncRun(ctx context.Context, cfg cliConfig, slot int) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "sync.run", map[string]any{"actor": cfg.Actor, "slot": slot}, nil)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPost, slotPath(slot, "/resync"), map[string]any{}, nil)
}

func doAccessList(ctx context.Context, cfg cliConfig, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "access.list", map[string]any{}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodGet, "/api/access/allowed", nil, out)
}

func doAccessAllow(ctx context.Context, cfg cliConfig, email string) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "access.allow", map[string]any{"actor": cfg.Actor, "email": email}, nil)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPost, "/api/access/allow", map[string]any{"email": email}, nil)
}

func doAccessDisallow(ctx context.Context, cfg cliConfig, email string) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "access.disallow", map[string]any{"actor": cfg.Actor, "email": email}, nil)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPost, "/api/access/disallow", map[string]any{"email": email}, nil)
}

func slotPath(slot int, suffix string) string {
	return fmt.Sprintf("/api/databases/%d%s", slot, suffix)
}
