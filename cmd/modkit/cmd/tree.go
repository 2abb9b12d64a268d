package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modkit"
	"github.com/GoCodeAlone/modkit/logging"
)

// NewTreeCommand creates the tree command
func NewTreeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the module tree with services and controllers",
		Long: `Bootstrap the application without starting it and print the imported
modules, the services and controllers each one declares, and the attributed
controller methods.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}
			app, err := NewApplication(cfg, modkit.WithLogger(logging.NewNop()), modkit.WithAbortPolicy(modkit.AbortPropagate))
			if err != nil {
				return err
			}
			if err := app.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			return PrintTree(cmd.OutOrStdout(), app)
		},
	}
}

// PrintTree writes the module tree of a bootstrapped application to w.
func PrintTree(w io.Writer, app *modkit.Application) error {
	root := app.ModuleManager().Root()
	if root == nil {
		return modkit.ErrModuleNotImported
	}
	p := &treePrinter{w: w, app: app}
	p.line("", root.Name())
	p.module(root, "")
	return p.err
}

type treePrinter struct {
	w   io.Writer
	app *modkit.Application
	err error
}

func (p *treePrinter) line(prefix, text string) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintln(p.w, prefix+text)
}

func (p *treePrinter) module(node modkit.Module, indent string) {
	var entries []string
	for _, reg := range p.app.ServiceManager().Registrations() {
		if reg.Module == node {
			entries = append(entries, "service "+reg.Name())
		}
	}
	for _, reg := range p.app.ControllerManager().Controllers() {
		if reg.Module != node {
			continue
		}
		entries = append(entries, "controller "+reg.Token.String())
		for _, m := range p.app.ControllerManager().Registrations() {
			if m.Target == reg.Instance {
				entries = append(entries, "  "+m.MethodName+" "+attributeNames(m))
			}
		}
	}
	children := p.app.ModuleManager().Children(node)

	total := len(entries) + len(children)
	n := 0
	branch := func() (string, string) {
		n++
		if n == total {
			return indent + "└── ", indent + "    "
		}
		return indent + "├── ", indent + "│   "
	}

	for _, e := range entries {
		head, _ := branch()
		p.line(head, e)
	}
	for _, child := range children {
		head, next := branch()
		p.line(head, child.Name())
		p.module(child, next)
	}
}

func attributeNames(m *modkit.MethodAttributeRegistration) string {
	names := make([]string, len(m.Attributes))
	for i, a := range m.Attributes {
		names[i] = a.AttributeName()
	}
	return "[" + strings.Join(names, ", ") + "]"
}
