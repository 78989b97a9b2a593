package controller

import (
	"context"
	"fmt"

	"go.agentconsole.tech/internal/backend"
	"go.agentconsole.tech/internal/console/httperrors"
	"go.agentconsole.tech/internal/console/route"
)

// ConfigView is the view model of the configuration editors
type ConfigView struct {
	BackendURL string
	Config     backend.Document
	Error      *httperrors.Failure
}

// ConfigCommonCtrl loads the configuration document named by the route's
// backendUrl local
type ConfigCommonCtrl struct {
	backend ConfigBackend
	errors  *httperrors.Handler
}

// Load fetches the document. A failed fetch is recorded and shown on the page.
func (c *ConfigCommonCtrl) Load(ctx context.Context, nav *route.Navigation) (interface{}, error) {
	path := nav.Local("backendUrl")
	if path == "" {
		return nil, fmt.Errorf("route %s has no backendUrl", nav.Route.Name)
	}

	v := &ConfigView{BackendURL: path}
	doc, err := c.backend.Config(ctx, path)
	if err != nil {
		f := c.errors.Record(ctx, err)
		v.Error = &f
		return v, nil
	}
	v.Config = doc
	return v, nil
}

// ConfigPluginCtrl loads the configuration document of the plugin named in the URL
type ConfigPluginCtrl struct {
	backend ConfigBackend
	errors  *httperrors.Handler
}

// Load fetches the plugin's document
func (c *ConfigPluginCtrl) Load(ctx context.Context, nav *route.Navigation) (interface{}, error) {
	pluginID := nav.Param("pluginId")
	if pluginID == "" {
		return nil, fmt.Errorf("route %s: missing pluginId", nav.Route.Name)
	}

	v := &ConfigView{BackendURL: backend.PluginConfigPath(pluginID)}
	doc, err := c.backend.PluginConfig(ctx, pluginID)
	if err != nil {
		f := c.errors.Record(ctx, err)
		v.Error = &f
		return v, nil
	}
	v.Config = doc
	return v, nil
}
