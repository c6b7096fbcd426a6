// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package interp

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed prelude.py
var preludeSource []byte

// PreludeFile is the file name shown for prelude frames in tracebacks.
const PreludeFile = "<prelude>"

// StatisticsModule is the import name of the module the prelude defines.
const StatisticsModule = "statistics"

// loadPrelude runs the prelude unit in its own namespace and registers the
// functions it defines as the importable statistics module. Nothing is bound
// into globals. The prelude unit stays open until Run returns because its
// functions reference its syntax tree.
func (in *Interpreter) loadPrelude(ctx context.Context) (func(), error) {
	unit, err := compileUnit(ctx, PreludeUnit, PreludeFile, preludeSource)
	if err != nil {
		return nil, fmt.Errorf("load prelude: %w", err)
	}
	ns := in.newGlobals()
	ns["__name__"] = Str(StatisticsModule)
	if _, err := in.runModule(unit, ns); err != nil {
		unit.Close()
		return nil, fmt.Errorf("load prelude: %w", err)
	}
	mod := &Module{Name: StatisticsModule, Attrs: map[string]Value{}}
	for name, v := range ns {
		if fn, ok := v.(*Function); ok && !strings.HasPrefix(name, "_") {
			mod.Attrs[name] = fn
		}
	}
	in.modules[StatisticsModule] = mod
	return func() {
		delete(in.modules, StatisticsModule)
		unit.Close()
	}, nil
}
