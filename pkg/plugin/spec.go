package plugin

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	xerrors "QDataServer/internal/errors"
	"QDataServer/pkg/logger"
)

// Dependency is one entry of a spec's declared dependency list. An empty
// version means any version; declared versions are informational and are
// not enforced during resolution.
type Dependency struct {
	Name    string
	Version string
}

// Spec is one parsed plugin description file together with its position in
// the dependency graph and its lifecycle state.
//
// Specs are owned exclusively by the Manager; the edges in both directions
// are non-owning references into the manager's collection and never outlive
// it.
type Spec struct {
	name         string
	version      string
	description  string
	category     string
	dependencies []Dependency
	filePath     string
	fileName     string

	enabled                    bool
	persistent                 bool
	indirectlyDisabled         bool
	initializationFailed       bool
	circularDependencyDetected bool

	dependencySpecs []*Spec
	providesSpecs   []*Spec

	plugin      Plugin
	state       State
	hasError    bool
	errorString string

	loader Loader
}

// NewSpec returns a fresh spec in the Invalid state.
func NewSpec() *Spec {
	return &Spec{loader: GoPluginLoader{}}
}

const (
	elementPlugin         = "plugin"
	elementDescription    = "description"
	elementCategory       = "category"
	elementDependencyList = "dependencyList"
	elementDependency     = "dependency"
	attributeName         = "name"
	attributeVersion      = "version"
)

var versionRegExp = regexp.MustCompile(
	`^([0-9]+)(\.[0-9]+)?(\.[0-9]+)?(_[0-9]+)?$`)

func isValidVersion(version string) bool {
	return versionRegExp.MatchString(version)
}

// Read parses the given description file. On success the spec reaches the
// Read state with the plugin enabled; any failure is recorded in the error
// string and leaves the spec Invalid.
func (s *Spec) Read(specFileName string) error {
	s.name = ""
	s.version = ""
	s.description = ""
	s.category = ""
	s.errorString = ""
	s.dependencies = nil
	s.enabled = false
	s.indirectlyDisabled = false
	s.circularDependencyDetected = false
	s.providesSpecs = nil
	s.dependencySpecs = nil
	s.plugin = nil
	s.state = StateInvalid
	s.hasError = false

	file, err := os.Open(specFileName)
	if err != nil {
		if os.IsNotExist(err) {
			return s.reportError(xerrors.CodeNotFound,
				fmt.Sprintf("File does not exist: %s", specFileName))
		}
		return s.reportError(xerrors.CodeNotFound,
			fmt.Sprintf("File could not be opened for read: %s", specFileName))
	}
	defer file.Close()

	absPath, err := filepath.Abs(specFileName)
	if err != nil {
		absPath = specFileName
	}
	s.filePath = filepath.Dir(absPath)
	s.fileName = filepath.Base(absPath)

	if err := s.parse(file); err != nil {
		line := 0
		var syntaxErr *xml.SyntaxError
		if errors.As(err, &syntaxErr) {
			line = syntaxErr.Line
		}
		return s.reportError(xerrors.CodeParseFailure,
			fmt.Sprintf("Error parsing spec file %s: %v, at line %d",
				s.fileName, err, line))
	}
	if s.hasError {
		return xerrors.New(xerrors.CodeParseFailure, s.errorString)
	}

	s.state = StateRead
	s.enabled = true
	return nil
}

func (s *Spec) parse(r io.Reader) error {
	decoder := xml.NewDecoder(r)
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if start, ok := token.(xml.StartElement); ok {
			if err := s.readPluginSpec(decoder, start); err != nil {
				return err
			}
		}
	}
}

func (s *Spec) readPluginSpec(decoder *xml.Decoder, root xml.StartElement) error {
	if root.Name.Local != elementPlugin {
		s.reportError(xerrors.CodeParseFailure, fmt.Sprintf(
			"Expected element '%s' as top level element", elementPlugin))
		return nil
	}
	s.name = attribute(root, attributeName)
	if s.name == "" {
		s.reportError(xerrors.CodeParseFailure, fmt.Sprintf(
			"Expected attribute '%s' at element %s", attributeName, elementPlugin))
		return nil
	}
	s.version = attribute(root, attributeVersion)
	if !isValidVersion(s.version) {
		s.version = ""
	}

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch element := token.(type) {
		case xml.StartElement:
			switch element.Name.Local {
			case elementDescription:
				text, err := elementText(decoder, element)
				if err != nil {
					return err
				}
				s.description = text
			case elementCategory:
				text, err := elementText(decoder, element)
				if err != nil {
					return err
				}
				s.category = text
			case elementDependencyList:
				if err := s.readDependencies(decoder); err != nil {
					return err
				}
			default:
				if err := decoder.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if element.Name.Local == elementPlugin {
				return nil
			}
		}
	}
}

func (s *Spec) readDependencies(decoder *xml.Decoder) error {
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch element := token.(type) {
		case xml.StartElement:
			if element.Name.Local == elementDependency {
				s.readDependencyEntry(element)
			}
			if err := decoder.Skip(); err != nil {
				return err
			}
		case xml.EndElement:
			if element.Name.Local == elementDependencyList {
				return nil
			}
		}
	}
}

func (s *Spec) readDependencyEntry(element xml.StartElement) {
	dep := Dependency{Name: attribute(element, attributeName)}
	if dep.Name == "" {
		s.reportError(xerrors.CodeParseFailure, fmt.Sprintf(
			"Expected attribute '%s' at element %s",
			attributeName, elementDependency))
		return
	}
	dep.Version = attribute(element, attributeVersion)
	if !isValidVersion(dep.Version) {
		dep.Version = ""
	}
	s.dependencies = append(s.dependencies, dep)
}

func attribute(element xml.StartElement, name string) string {
	for _, attr := range element.Attr {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}

func elementText(decoder *xml.Decoder, start xml.StartElement) (string, error) {
	var text string
	if err := decoder.DecodeElement(&text, &start); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ResolveDependencies matches the declared dependency names against specs
// and establishes the graph edges in both directions. Missing dependencies
// are all reported, not just the first. On success the spec reaches the
// Resolved state; re-resolving is idempotent.
func (s *Spec) ResolveDependencies(specs []*Spec) error {
	if s.hasError {
		return xerrors.New(xerrors.CodeUnresolvedDependency, s.errorString)
	}

	if s.state == StateResolved {
		// Go back, so we just re-resolve the dependencies.
		s.state = StateRead
	}
	if s.state != StateRead {
		panic("plugin: ResolveDependencies requires the Read state")
	}

	s.dropForwardEdges()

	var resolved []*Spec
	for _, dependency := range s.dependencies {
		var found *Spec
		for _, candidate := range specs {
			if candidate.name == dependency.Name {
				found = candidate
				candidate.providesSpecs = append(candidate.providesSpecs, s)
				break
			}
		}
		if found == nil {
			s.reportError(xerrors.CodeUnresolvedDependency, fmt.Sprintf(
				"Plugin %s - could not resolve dependency on %s.",
				s.name, dependency.Name))
			continue
		}
		resolved = append(resolved, found)
	}

	s.dependencySpecs = resolved

	if s.hasError {
		return xerrors.New(xerrors.CodeUnresolvedDependency, s.errorString)
	}

	s.state = StateResolved
	return nil
}

// dropForwardEdges removes this spec's forward edges and the matching
// reverse edges, so a re-resolution starts from a clean slate.
func (s *Spec) dropForwardEdges() {
	for _, dep := range s.dependencySpecs {
		dep.providesSpecs = slices.DeleteFunc(dep.providesSpecs,
			func(candidate *Spec) bool { return candidate == s })
	}
	s.dependencySpecs = nil
}

// ResolveIndirectlyDisabled recomputes the derived indirectly-disabled
// flag. With force set the flag is recomputed from scratch and the result
// is propagated to every dependent spec, so a full pass over all specs
// reaches a fixed point.
func (s *Spec) ResolveIndirectlyDisabled(force bool) {
	var stack []*Spec
	s.resolveIndirectlyDisabled(force, &stack)
}

func (s *Spec) resolveIndirectlyDisabled(force bool, stack *[]*Spec) {
	if s.circularDependencyDetected {
		return
	}

	if slices.Contains(*stack, s) {
		// Circular dependency found.
		s.indirectlyDisabled = true
		s.circularDependencyDetected = true

		pluginOrder := s.name
		for i := len(*stack) - 1; i >= 0; i-- {
			pluginOrder += " -> " + (*stack)[i].name
			if (*stack)[i] == s {
				break
			}
		}

		*stack = append(*stack, s)
		// Resolve again the plugins which depend on me and share the cycle.
		for _, provides := range s.providesSpecs {
			provides.resolveIndirectlyDisabled(true, stack)
		}
		s.reportError(xerrors.CodeCircularDependency,
			"Circular dependency detected: "+pluginOrder)
		*stack = (*stack)[:len(*stack)-1]
		return
	}

	if force {
		s.indirectlyDisabled = false
	} else if s.indirectlyDisabled {
		return
	}

	*stack = append(*stack, s)

	for _, dependency := range s.dependencySpecs {
		if dependency.hasError || dependency.indirectlyDisabled ||
			!dependency.IsEnabled() || dependency.initializationFailed {
			s.indirectlyDisabled = true
			break
		}
	}
	if s.indirectlyDisabled || force {
		// Resolve again the plugins which depend on me.
		for _, provides := range s.providesSpecs {
			provides.resolveIndirectlyDisabled(force, stack)
		}
	}

	*stack = (*stack)[:len(*stack)-1]
}

// LoadQueue appends this spec and everything it requires to queue,
// dependencies first. It reports false when the spec cannot be loaded
// because it is disabled, indirectly disabled, part of a dependency cycle
// or depends on a spec with one of these defects.
func (s *Spec) LoadQueue(queue, cycleCheck *[]*Spec) bool {
	if s.state < StateResolved {
		panic("plugin: LoadQueue requires at least the Resolved state")
	}

	if !s.enabled || s.indirectlyDisabled {
		return false
	}

	if slices.Contains(*queue, s) {
		return true
	}

	if slices.Contains(*cycleCheck, s) {
		s.reportError(xerrors.CodeCircularDependency,
			"Circular dependency detected: "+cycleOrder(*cycleCheck, s))
		return false
	}
	*cycleCheck = append(*cycleCheck, s)

	for _, dependency := range s.dependencySpecs {
		if dependency.state < StateResolved || !dependency.LoadQueue(queue, cycleCheck) {
			s.reportError(xerrors.CodeUnresolvedDependency, fmt.Sprintf(
				"Plugin %s cannot be loaded because dependency %s failed.",
				s.name, dependency.name))
			return false
		}
	}

	*queue = append(*queue, s)
	return true
}

// UnloadQueue appends this spec and everything that depends on it to queue,
// dependents first. A spec that is disabled but still loaded is included,
// so its resources are released.
func (s *Spec) UnloadQueue(queue, cycleCheck *[]*Spec) bool {
	if s.state < StateResolved {
		panic("plugin: UnloadQueue requires at least the Resolved state")
	}

	if (!s.enabled || s.indirectlyDisabled) && s.state < StateLoaded {
		return false
	}

	if slices.Contains(*queue, s) {
		return true
	}

	if slices.Contains(*cycleCheck, s) {
		s.reportError(xerrors.CodeCircularDependency,
			"Circular dependency detected: "+cycleOrder(*cycleCheck, s))
		return false
	}
	*cycleCheck = append(*cycleCheck, s)

	for _, provides := range s.providesSpecs {
		// A dependent that never resolved has nothing loaded to release.
		if provides.state >= StateResolved {
			provides.UnloadQueue(queue, cycleCheck)
		}
	}

	*queue = append(*queue, s)
	return true
}

func cycleOrder(cycleCheck []*Spec, last *Spec) string {
	var order strings.Builder
	for i, spec := range cycleCheck {
		if i > 0 {
			order.WriteString(" -> ")
		}
		order.WriteString(spec.name)
	}
	if order.Len() > 0 {
		order.WriteString(" -> ")
	}
	order.WriteString(last.name)
	return order.String()
}

// LoadPlugin loads the plugin library and creates the plugin instance. It
// returns nil when a dependency is not loaded yet or when loading fails;
// the failure reason is recorded on the spec.
func (s *Spec) LoadPlugin() Plugin {
	if s.state != StateResolved {
		panic("plugin: LoadPlugin requires the Resolved state")
	}

	libName := buildLibraryName(s.filePath, s.name)

	for _, dependency := range s.dependencySpecs {
		if dependency.plugin == nil {
			// The plugin this one depends on should have been loaded
			// before it and was not.
			return nil
		}
	}

	instance, err := s.loader.Load(libName)
	if err != nil {
		logger.L().Warn("plugin library could not be loaded",
			"library", libName, "error", err)
		s.reportError(xerrors.CodeLoadFailure, err.Error())
		return nil
	}
	if instance == nil {
		s.reportError(xerrors.CodeIncompatibleBinary, fmt.Sprintf(
			"The file '%s' is not a compatible plugin.", libName))
		return nil
	}

	s.plugin = instance
	s.state = StateLoaded
	logger.L().Debug("plugin loaded", "library", libName)
	return s.plugin
}

// InitializePlugin runs the plugin's Initialize callback and advances to
// Initialized on success. On failure the spec stays Loaded with the
// initialization-failed flag set.
func (s *Spec) InitializePlugin() error {
	if s.plugin == nil || s.state != StateLoaded {
		panic("plugin: InitializePlugin requires the Loaded state")
	}

	if err := s.plugin.Initialize(); err != nil {
		logger.L().Warn("plugin initialization failed",
			"plugin", s.name, "error", err)
		s.reportError(xerrors.CodeInitializationFailure, fmt.Sprintf(
			"Initialization of '%s' plugin failed: %v", s.name, err))
		s.initializationFailed = true
		return xerrors.Wrap(xerrors.CodeInitializationFailure, err, s.name)
	}

	logger.L().Debug("plugin initialized",
		"plugin", s.name, "version", s.version, "category", s.category)

	s.initializationFailed = false
	s.state = StateInitialized
	return nil
}

// UnloadPlugin shuts the plugin down when it was initialized, releases the
// library and takes the spec back to Resolved.
func (s *Spec) UnloadPlugin() {
	if s.plugin == nil {
		return
	}

	if s.state >= StateInitialized {
		s.plugin.Shutdown()
	}

	libName := buildLibraryName(s.filePath, s.name)
	if s.loader.Unload(libName) {
		logger.L().Debug("plugin unloaded", "plugin", s.name)
	} else {
		logger.L().Warn("plugin library is still referenced and stays in memory",
			"plugin", s.name, "library", libName)
	}
	s.plugin = nil
	s.state = StateResolved
}

func (s *Spec) reportError(code xerrors.Code, message string) error {
	if s.errorString != "" {
		s.errorString += "\n"
	}
	s.errorString += message
	s.hasError = true
	return xerrors.New(code, message)
}

// Name returns the plugin name. Valid once the Read state is reached.
func (s *Spec) Name() string { return s.name }

// Version returns the plugin version. Valid once the Read state is reached.
func (s *Spec) Version() string { return s.version }

// Description returns the plugin description.
func (s *Spec) Description() string { return s.description }

// Category returns the group of plugins this one belongs to, used to keep
// related plugins together in listings. Empty when uncategorised.
func (s *Spec) Category() string { return s.category }

// Dependencies returns the declared dependency list.
func (s *Spec) Dependencies() []Dependency { return s.dependencies }

// FilePath returns the absolute path to the directory of the description
// file, which is also where the plugin library is looked up.
func (s *Spec) FilePath() string { return s.filePath }

// FileName returns the file name of the description file, without a path.
func (s *Spec) FileName() string { return s.fileName }

// DependencySpecs returns the dependencies resolved to existing specs.
// Valid once the Resolved state is reached.
func (s *Spec) DependencySpecs() []*Spec { return s.dependencySpecs }

// ProvidesSpecs returns the specs that depend on this one.
func (s *Spec) ProvidesSpecs() []*Spec { return s.providesSpecs }

// Plugin returns the loaded plugin instance, or nil before the Loaded
// state is reached.
func (s *Spec) Plugin() Plugin { return s.plugin }

// State returns the lifecycle state the spec currently is in.
func (s *Spec) State() State { return s.state }

// HasError reports whether an error occurred while reading, resolving,
// loading or initializing the plugin. Only a later successful Read clears
// it.
func (s *Spec) HasError() bool { return s.hasError }

// ErrorString returns the accumulated, possibly multi-line, user-readable
// error description.
func (s *Spec) ErrorString() string { return s.errorString }

// SetEnabled enables or disables plugin loading at startup. Disabling a
// persistent plugin is a no-op.
func (s *Spec) SetEnabled(enabled bool) {
	if s.persistent && !enabled {
		return
	}
	s.enabled = enabled
}

// IsEnabled reports whether to load the plugin at startup. True by
// default; the user can change it unless the plugin is persistent.
func (s *Spec) IsEnabled() bool {
	return s.enabled || s.persistent
}

// SetPersistent marks the plugin as one the user cannot disable. Setting
// it also enables the plugin.
func (s *Spec) SetPersistent(persistent bool) {
	s.persistent = persistent
	if persistent {
		s.enabled = true
	}
}

// IsPersistent reports whether the plugin is one the user cannot disable.
func (s *Spec) IsPersistent() bool { return s.persistent }

// IsIndirectlyDisabled reports that loading was skipped because a plugin
// this one needs is disabled, has an error, failed to initialize or is
// itself indirectly disabled.
func (s *Spec) IsIndirectlyDisabled() bool { return s.indirectlyDisabled }

// HasCircularDependency reports that the spec participates in a dependency
// cycle.
func (s *Spec) HasCircularDependency() bool { return s.circularDependencyDetected }

// InitializationFailed reports that the plugin's Initialize callback
// failed.
func (s *Spec) InitializationFailed() bool { return s.initializationFailed }
