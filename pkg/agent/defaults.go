package agent

import (
	"github.com/rsmyth-dev/heron/pkg/bgtask"
	"github.com/rsmyth-dev/heron/pkg/tools"
)

// DefaultRegistry builds a Registry with every built-in tool wired for the
// working directory. tasks may be nil to disable backgrounding; delegator
// may be nil to disable subagent delegation. The AskUser handler is left
// unset for the host app to fill in.
func DefaultRegistry(workdir string, tasks *bgtask.Registry, delegator tools.Delegator) *tools.Registry {
	reg := tools.NewRegistry()

	reg.Register(&tools.BashTool{Workdir: workdir, Tasks: tasks})
	reg.Register(&tools.ReadTool{})
	reg.Register(&tools.WriteTool{})
	reg.Register(&tools.EditTool{})
	reg.Register(&tools.MultiEditTool{})
	reg.Register(&tools.DeleteTool{})
	reg.Register(&tools.ExitPlanModeTool{})
	reg.Register(&tools.AskUserTool{})

	var sources []tools.TaskSource
	if tasks != nil {
		sources = append(sources, tools.ShellTasks(tasks))
	}
	if delegator != nil {
		reg.Register(&tools.TaskTool{Delegator: delegator})
		if src, ok := delegator.(tools.TaskSource); ok {
			sources = append(sources, src)
		}
	}
	reg.Register(&tools.TaskOutputTool{Sources: sources})
	reg.Register(&tools.KillTaskTool{Sources: sources})

	return reg
}
