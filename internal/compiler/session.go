package compiler

import (
	"github.com/rs/zerolog"

	"github.com/roach88/rulecql/internal/elm"
	"github.com/roach88/rulecql/internal/modelinfo"
	"github.com/roach88/rulecql/internal/modeling"
	"github.com/roach88/rulecql/internal/rulegraph"
	"github.com/roach88/rulecql/internal/terminology"
)

// Compiler compiles rules into libraries.
//
// Thread-safety: Compile is safe for concurrent use. Each call runs its own
// Session; only the immutable model and the Assembler are shared.
type Compiler struct {
	model       *modelinfo.Model
	assembler   *Assembler
	runIDs      RunIDGenerator
	logger      zerolog.Logger
	urlTemplate string
	valueSets   map[string]string
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger diagnostics are written to.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// WithRunIDGenerator sets the run id source.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(c *Compiler) { c.runIDs = g }
}

// WithAssembler sets the library assembler.
func WithAssembler(a *Assembler) Option {
	return func(c *Compiler) { c.assembler = a }
}

// WithValueSetURLTemplate sets the template for unmapped value-set displays.
func WithValueSetURLTemplate(template string) Option {
	return func(c *Compiler) { c.urlTemplate = template }
}

// WithValueSetMap sets explicit value-set display -> URL mappings.
func WithValueSetMap(m map[string]string) Option {
	return func(c *Compiler) { c.valueSets = m }
}

// New creates a compiler against model.
func New(model *modelinfo.Model, opts ...Option) *Compiler {
	c := &Compiler{
		model:     model,
		assembler: NewAssembler(),
		runIDs:    UUIDv7Generator{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is one compiled rule.
type Result struct {
	RunID       string
	Rule        string
	Library     *elm.Library
	Hash        string
	Diagnostics []Diagnostic
}

// LibraryName takes the library identifier for label from the compiler's
// assembler. Fallback names advance a shared counter.
func (c *Compiler) LibraryName(label string) string {
	return c.assembler.LibraryName(label)
}

// Compile compiles one rule. Hard failures abort with a *CompileError;
// soft failures are returned as diagnostics alongside the library.
func (c *Compiler) Compile(rule *rulegraph.Rule) (*Result, error) {
	return c.CompileNamed(rule, "")
}

// CompileNamed compiles rule into a library called name. An empty name is
// derived from the rule label.
func (c *Compiler) CompileNamed(rule *rulegraph.Rule, name string) (*Result, error) {
	runID := c.runIDs.Generate()
	logger := c.logger.With().Str("run", runID).Str("rule", rule.Label).Logger()

	s := c.NewSession(logger)
	if err := s.Run(rule.Root); err != nil {
		return nil, err
	}

	lib, err := c.assembler.Assemble(Assembly{
		Label:       rule.Label,
		Name:        name,
		Version:     rule.Version,
		Definitions: s.scopes.Definitions(),
		References:  s.stacks.References,
		Terminology: s.terms,
		Builder:     s.builder,
	})
	if err != nil {
		return nil, err
	}

	hash, err := elm.LibraryHash(lib)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("library", lib.Identifier.ID).
		Int("definitions", len(lib.Statements)).
		Int("diagnostics", len(s.diags.items)).
		Msg("rule compiled")

	return &Result{
		RunID:       runID,
		Rule:        rule.Label,
		Library:     lib,
		Hash:        hash,
		Diagnostics: s.diags.All(),
	}, nil
}

// Session is the mutable state of one rule compilation: terminology
// registry, builder, shared stacks, adapter and scopes.
type Session struct {
	terms   *terminology.Registry
	builder *modeling.Builder
	stacks  *Stacks
	diags   *Diagnostics
	adapter *Adapter
	scopes  *ScopeManager
}

// NewSession creates a session with fresh state.
func (c *Compiler) NewSession(logger zerolog.Logger) *Session {
	terms := terminology.NewRegistry(
		terminology.WithURLTemplate(c.urlTemplate),
		terminology.WithValueSetMap(c.valueSets),
	)
	builder := modeling.NewBuilder(c.model.Bind(terms), terms)
	stacks := &Stacks{}
	diags := NewDiagnostics(logger)

	return &Session{
		terms:   terms,
		builder: builder,
		stacks:  stacks,
		diags:   diags,
		adapter: NewAdapter(modeling.NewResolver(builder), terms, stacks, diags),
		scopes:  NewScopeManager(stacks, diags),
	}
}

// Run walks root depth-first. Compound nodes open a scope, visit their
// children and close with their conjunction (default "and"); leaves feed
// their parts to the adapter and finish. A leaf root gets its own scope.
func (s *Session) Run(root *rulegraph.Node) error {
	if root.IsCompound() {
		return s.visit(root)
	}

	name, err := InferIdentifier(root.Alias, root.Text, root.Label, root.ID)
	if err != nil {
		return err
	}
	if err := s.scopes.OpenScope(name, DefaultContext); err != nil {
		return err
	}
	if err := s.predicate(root); err != nil {
		return err
	}
	_, err = s.scopes.CloseScope(elm.ConjunctionAnd, 1)
	return err
}

func (s *Session) visit(n *rulegraph.Node) error {
	if !n.IsCompound() {
		return s.predicate(n)
	}

	name, err := InferIdentifier(n.Alias, n.Text, n.Label, n.ID)
	if err != nil {
		return err
	}
	token := n.Conjunction
	if token == "" {
		token = "and"
	}
	conj, err := ParseConjunction(token)
	if err != nil {
		if ce, ok := err.(*CompileError); ok {
			ce.Scope = name
		}
		return err
	}

	if err := s.scopes.OpenScope(name, DefaultContext); err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := s.visit(child); err != nil {
			return err
		}
	}
	_, err = s.scopes.CloseScope(conj, len(n.Children))
	return err
}

func (s *Session) predicate(n *rulegraph.Node) error {
	s.adapter.Begin(n.ID)
	for _, part := range n.Parts {
		if err := s.adapter.Observe(part); err != nil {
			return err
		}
	}
	_, err := s.adapter.Finish(n.Operator)
	return err
}

// Diagnostics returns the soft failures recorded so far.
func (s *Session) Diagnostics() []Diagnostic {
	return s.diags.All()
}

// Definitions returns the definitions closed so far.
func (s *Session) Definitions() []elm.ExpressionDef {
	return s.scopes.Definitions()
}
