package app

import (
	"io"

	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/modules/fail"
	"github.com/specialistvlad/taskgrid/modules/fanout"
	"github.com/specialistvlad/taskgrid/modules/notify"
	"github.com/specialistvlad/taskgrid/modules/print"
	"github.com/specialistvlad/taskgrid/modules/sleep"
)

// coreModules is the definitive list of all modules that are compiled into
// the taskgrid binary. Printed output goes to outW.
func coreModules(outW io.Writer) []registry.Module {
	return []registry.Module{
		&print.Module{Out: outW},
		&sleep.Module{},
		&fail.Module{},
		&fanout.Module{},
		&notify.Module{},
	}
}
