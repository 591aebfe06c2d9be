package app

import (
	"net/http"

	"github.com/specialistvlad/nodegrid/internal/registry"
	"github.com/specialistvlad/nodegrid/modules/command"
	"github.com/specialistvlad/nodegrid/modules/http_request"
	"github.com/specialistvlad/nodegrid/modules/logger"
	"github.com/specialistvlad/nodegrid/modules/static_input"
)

// coreModules is the definitive list of all built-in node modules that are
// compiled into the nodegrid binary.
func coreModules() []registry.Module {
	return []registry.Module{
		&http_request.Module{Client: &http.Client{}},
		&command.Module{},
		&static_input.Module{},
		&logger.Module{},
	}
}
