package handlers

import (
	"context"
	"fmt"
	"time"

	"revcycle-hq/callisto/pkg/outbound"
	"revcycle-hq/callisto/pkg/rules"
	"revcycle-hq/callisto/pkg/rules/engine"
)

// triggerWebhook POSTs the entity and trigger context to the URL named in
// the action parameters.
func triggerWebhook(client *outbound.Client) engine.ActionHandler {
	return func(ctx context.Context, ectx *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
		url := a.GetStringParameter("url")
		if url == "" {
			return nil, fmt.Errorf("trigger_webhook requires a url parameter")
		}
		if client == nil {
			return nil, fmt.Errorf("no outbound client configured")
		}

		payload := map[string]any{
			"entityType": ectx.EntityType,
			"entityId":   ectx.EntityID,
			"trigger":    string(ectx.Trigger),
			"entity":     ectx.Entity,
			"timestamp":  ectx.Timestamp.Format(time.RFC3339),
		}
		if extra := a.GetMapParameter("payload"); extra != nil {
			payload["data"] = extra
		}

		headers := make(map[string]string)
		if hdrs := a.GetMapParameter("headers"); hdrs != nil {
			for k, v := range hdrs {
				if s, ok := v.(string); ok {
					headers[k] = s
				}
			}
		}

		if err := client.PostJSON(ctx, url, payload, nil, headers); err != nil {
			return nil, err
		}
		return map[string]any{"url": url, "delivered": true}, nil
	}
}

// sendDelivery posts email and SMS payloads to the configured gateway.
func sendDelivery(client *outbound.Client, gatewayURL, kind string) engine.ActionHandler {
	return func(ctx context.Context, ectx *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
		to := a.GetStringParameter("to")
		if to == "" {
			return nil, fmt.Errorf("send_%s requires a to parameter", kind)
		}
		if client == nil {
			return nil, fmt.Errorf("no outbound client configured")
		}
		if gatewayURL == "" {
			return nil, fmt.Errorf("no %s gateway configured", kind)
		}

		payload := map[string]any{
			"to":         to,
			"subject":    a.GetStringParameter("subject"),
			"body":       a.GetStringParameter("body"),
			"template":   a.GetStringParameter("template"),
			"entityType": ectx.EntityType,
			"entityId":   ectx.EntityID,
		}

		if err := client.PostJSON(ctx, gatewayURL, payload, nil, nil); err != nil {
			return nil, err
		}
		return map[string]any{"to": to, "kind": kind, "delivered": true}, nil
	}
}
