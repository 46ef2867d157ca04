package definition

import (
	"fmt"
	"sort"
)

// File is one process definition document.
//
//	schema_version: v1
//	processes:
//	  import.customers:
//	    description: ...
//	    end_point: write
//	    tasks:
//	      read: { service: iterate, outputs: [map] }
//	      map:  { service: transformer, options: { transformers: { mapping: {...} } } }
type File struct {
	SchemaVersion string              `yaml:"schema_version"`
	Processes     map[string]*Process `yaml:"processes"`
}

// Process is a named graph of tasks.
type Process struct {
	Code        string `yaml:"-"`
	Description string `yaml:"description"`
	Help        string `yaml:"help"`
	Public      *bool  `yaml:"public"`

	// EntryPoint receives the run input; defaults to the only root task.
	EntryPoint string `yaml:"entry_point"`
	// EndPoint is the task whose last output becomes the run output.
	EndPoint string `yaml:"end_point"`

	// Tasks keep their declaration order.
	Tasks []*Task `yaml:"-"`
}

// Task is one node declaration inside a process.
type Task struct {
	Code        string         `yaml:"-"`
	Service     string         `yaml:"service"`
	Description string         `yaml:"description"`
	Help        string         `yaml:"help"`
	Options     map[string]any `yaml:"-"`
	Outputs     []string       `yaml:"-"`
	Errors      []string       `yaml:"-"`

	// ErrorStrategy and LogErrors may be declared next to the options.
	ErrorStrategy string `yaml:"-"`
	LogErrors     *bool  `yaml:"-"`
}

// EffectiveOptions returns the declared options with the task-level
// error_strategy and log_errors folded in. Values declared under options
// win.
func (t *Task) EffectiveOptions() map[string]any {
	if t.ErrorStrategy == "" && t.LogErrors == nil {
		return t.Options
	}
	out := make(map[string]any, len(t.Options)+2)
	if t.ErrorStrategy != "" {
		out["error_strategy"] = t.ErrorStrategy
	}
	if t.LogErrors != nil {
		out["log_errors"] = *t.LogErrors
	}
	for k, v := range t.Options {
		out[k] = v
	}
	return out
}

// IsPublic reports whether the process is listed and runnable from the CLI.
func (p *Process) IsPublic() bool {
	return p.Public == nil || *p.Public
}

// Task looks a task up by code.
func (p *Process) Task(code string) (*Task, bool) {
	for _, t := range p.Tasks {
		if t.Code == code {
			return t, true
		}
	}
	return nil, false
}

// Catalog indexes the processes of one or more definition files.
type Catalog struct {
	processes map[string]*Process
}

func NewCatalog() *Catalog {
	return &Catalog{processes: map[string]*Process{}}
}

// Add registers every process of f, rejecting codes that already exist.
func (c *Catalog) Add(f *File) error {
	for code, p := range f.Processes {
		if p == nil {
			p = &Process{}
		}
		if _, dup := c.processes[code]; dup {
			return fmt.Errorf("process %q defined twice", code)
		}
		p.Code = code
		c.processes[code] = p
	}
	return nil
}

// AddProcess registers a single process built in code.
func (c *Catalog) AddProcess(p *Process) error {
	if p.Code == "" {
		return fmt.Errorf("process without code")
	}
	if _, dup := c.processes[p.Code]; dup {
		return fmt.Errorf("process %q defined twice", p.Code)
	}
	c.processes[p.Code] = p
	return nil
}

func (c *Catalog) Get(code string) (*Process, bool) {
	p, ok := c.processes[code]
	return p, ok
}

// Processes returns every process sorted by code.
func (c *Catalog) Processes() []*Process {
	out := make([]*Process, 0, len(c.processes))
	for _, p := range c.processes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
