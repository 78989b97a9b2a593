// Package controller holds the page controllers bound to console routes and
// the JSON endpoints their views call.
package controller

import (
	"context"

	"go.agentconsole.tech/internal/backend"
	"go.agentconsole.tech/internal/console/httperrors"
	"go.agentconsole.tech/internal/console/route"
)

// ConfigBackend is the subset of the backend client used by configuration pages
type ConfigBackend interface {
	Config(ctx context.Context, path string) (backend.Document, error)
	PluginConfig(ctx context.Context, pluginID string) (backend.Document, error)
	SaveConfig(ctx context.Context, path string, doc backend.Document) (backend.Document, error)
}

// Deps are the collaborators shared by every controller
type Deps struct {
	Config    ConfigBackend
	Errors    *httperrors.Handler
	Pointcuts *Scopes
}

// viewOnly names the controllers whose views load their own data from the
// backend proxy
var viewOnly = []string{
	"PerformanceCtrl",
	"PerformanceFlameGraphCtrl",
	"ErrorsCtrl",
	"TracesCtrl",
	"JvmCtrl",
	"JvmGaugesCtrl",
	"JvmMBeanTreeCtrl",
	"JvmThreadDumpCtrl",
	"JvmHeapDumpCtrl",
	"JvmProcessInfoCtrl",
	"JvmSystemPropertiesCtrl",
	"JvmCapabilitiesCtrl",
	"ConfigCtrl",
	"ConfigGaugeListCtrl",
	"ConfigStorageCtrl",
	"ConfigUserInterfaceCtrl",
	"LoginCtrl",
}

// Factories binds every controller name used by the route table to a constructor
func Factories(d Deps) map[string]route.Factory {
	factories := make(map[string]route.Factory, len(viewOnly)+3)
	for _, name := range viewOnly {
		factories[name] = func() route.Controller { return ViewCtrl{} }
	}

	factories["ConfigCommonCtrl"] = func() route.Controller {
		return &ConfigCommonCtrl{backend: d.Config, errors: d.Errors}
	}
	factories["ConfigPluginCtrl"] = func() route.Controller {
		return &ConfigPluginCtrl{backend: d.Config, errors: d.Errors}
	}
	factories["ConfigPointcutListCtrl"] = func() route.Controller {
		return &ConfigPointcutListCtrl{scopes: d.Pointcuts}
	}

	return factories
}

// ViewCtrl renders its view without a view model
type ViewCtrl struct{}

// Load returns no data
func (ViewCtrl) Load(ctx context.Context, nav *route.Navigation) (interface{}, error) {
	return nil, nil
}
