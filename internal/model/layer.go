package model

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// maxRefNameWidth caps the branch/commit segment in derived layer names.
	maxRefNameWidth = 7

	// configManagementSuffix is the conventional suffix on configuration
	// content repositories, stripped when deriving a layer name.
	configManagementSuffix = "-config-management"

	layerNameTimestampFormat = "20060102T150405"
)

// nowFunc returns the current time, swapped out in tests to pin derived
// layer names.
var nowFunc = time.Now

// BranchResolver resolves a branch in a content repository to the commit
// hash at its head. Implemented by the vcs package.
type BranchResolver interface {
	CommitForBranch(ctx context.Context, cloneURL, branch string) (string, error)
}

// Product is an entry from the product catalog that a layer can be built
// from.
type Product struct {
	Name     string
	Version  string
	CloneURL string
	Commit   string
}

// ProductCatalog resolves a product name and version to the source of its
// configuration content.
type ProductCatalog interface {
	// Product returns the catalog entry for the given product. An empty
	// version selects the latest.
	Product(ctx context.Context, name, version string) (Product, error)
}

// LayerSpec carries the caller-supplied parameters for a new layer.
type LayerSpec struct {
	// CloneURL is the clone URL of the configuration content repository.
	CloneURL string
	// Source names a preconfigured content source instead of a clone URL.
	// Schema v3 only.
	Source string
	// Name overrides the derived layer name.
	Name string
	// Playbook to run for this layer. Required for configuration layers,
	// forbidden for the additional-inventory layer.
	Playbook string
	// Commit pins the content revision. One of Commit or Branch is required.
	Commit string
	// Branch is the moving content reference. One of Commit or Branch is
	// required.
	Branch string
	// RequireDkms marks the layer as needing a kernel module build.
	RequireDkms *bool
}

// Layer is one unit of declarative configuration in a configuration's
// ordered layer list. The schema version and kind tags select one of the
// four closed wire variants (v2/v3 x configuration/additional-inventory).
type Layer struct {
	Version SchemaVersion
	Kind    LayerKind

	CloneURL    string
	Source      string
	Name        string
	Playbook    string
	Commit      string
	Branch      string
	RequireDkms *bool

	// AdditionalData holds fields from the persisted record that this
	// client does not model; they round-trip verbatim.
	AdditionalData map[string]any
}

// NewLayer returns a validated layer, deriving the conventional layer name
// when none is given.
func NewLayer(version SchemaVersion, kind LayerKind, spec LayerSpec) (*Layer, error) {
	layer, err := newLayer(version, kind, spec)
	if err != nil {
		return nil, err
	}

	if layer.Name == "" {
		layer.Name = layer.buildName(layer.ShortName())
	}

	return layer, nil
}

func newLayer(version SchemaVersion, kind LayerKind, spec LayerSpec) (*Layer, error) {
	var errs *multierror.Error

	if spec.Commit == "" && spec.Branch == "" {
		errs = multierror.Append(errs, errors.New("either a commit or a branch is required"))
	}

	if spec.CloneURL == "" && spec.Source == "" {
		errs = multierror.Append(errs, errors.New("a clone URL or a named source is required"))
	}

	if version == SchemaV2 && spec.Source != "" {
		errs = multierror.Append(errs, errors.New("named sources require schema "+string(SchemaV3)))
	}

	switch kind {
	case LayerKindConfig:
		if spec.Playbook == "" {
			errs = multierror.Append(errs, errors.New("a playbook is required for configuration layers"))
		}
	case LayerKindInventory:
		if spec.Playbook != "" {
			errs = multierror.Append(errs, errors.New("the additional-inventory layer does not take a playbook"))
		}
	default:
		errs = multierror.Append(errs, errors.New("unknown layer kind: "+string(kind)))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, errors.Wrap(ErrLayerSpec, err.Error())
	}

	return &Layer{
		Version:     version,
		Kind:        kind,
		CloneURL:    spec.CloneURL,
		Source:      spec.Source,
		Name:        spec.Name,
		Playbook:    spec.Playbook,
		Commit:      spec.Commit,
		Branch:      spec.Branch,
		RequireDkms: spec.RequireDkms,
	}, nil
}

// LayerFromProduct builds a layer from a product catalog entry, rewriting
// the content clone URL to go through the given API gateway host. When the
// spec pins neither commit nor branch, the catalog commit is used.
func LayerFromProduct(
	ctx context.Context,
	catalog ProductCatalog,
	gatewayHost string,
	version SchemaVersion,
	kind LayerKind,
	productName, productVersion string,
	spec LayerSpec,
) (*Layer, error) {
	failMsg := "failed to create layer for product " + productName
	if productVersion != "" {
		failMsg = "failed to create layer for version " + productVersion + " of product " + productName
	}

	product, err := catalog.Product(ctx, productName, productVersion)
	if err != nil {
		return nil, errors.Wrap(ErrConfiguration, failMsg+": "+err.Error())
	}

	if product.CloneURL == "" {
		return nil, errors.Wrap(ErrConfiguration, failMsg+": product has no clone URL")
	}

	spec.CloneURL, err = rewriteHost(product.CloneURL, gatewayHost)
	if err != nil {
		return nil, errors.Wrap(ErrConfiguration, failMsg+": "+err.Error())
	}

	if spec.Commit == "" && spec.Branch == "" {
		if product.Commit == "" {
			return nil, errors.Wrap(ErrConfiguration, failMsg+": product has no commit hash")
		}

		spec.Commit = product.Commit
	}

	layer, err := newLayer(version, kind, spec)
	if err != nil {
		return nil, err
	}

	if layer.Name == "" {
		layer.Name = layer.buildName(productName)
	}

	return layer, nil
}

// rewriteHost swaps the host of rawURL for gatewayHost, which may be given
// with or without a URL scheme.
func rewriteHost(rawURL, gatewayHost string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	if gwParsed, err := url.Parse(gatewayHost); err == nil && gwParsed.Host != "" {
		gatewayHost = gwParsed.Host
	}

	parsed.Host = gatewayHost

	return parsed.String(), nil
}

// RepoPath is the path portion of the clone URL, one of the attributes
// identifying a layer across revisions.
func (l *Layer) RepoPath() string {
	parsed, err := url.Parse(l.CloneURL)
	if err != nil {
		return ""
	}

	return parsed.Path
}

// ShortName derives the short content name for this layer - the named source
// when one is set, otherwise the repository basename with the ".git" and
// "-config-management" suffixes stripped.
func (l *Layer) ShortName() string {
	if l.Source != "" {
		return l.Source
	}

	repoName := path.Base(l.RepoPath())

	return strings.TrimSuffix(strings.TrimSuffix(repoName, ".git"), configManagementSuffix)
}

// buildName composes the conventional layer name. Additional-inventory
// layers omit the playbook segment. The trailing timestamp comes from
// nowFunc, so derived names are not stable across calls.
func (l *Layer) buildName(contentName string) string {
	ref := l.Branch
	if ref == "" {
		ref = l.Commit
	}

	if len(ref) > maxRefNameWidth {
		ref = ref[:maxRefNameWidth]
	}

	parts := []string{contentName}

	if l.Kind == LayerKindConfig {
		playbookName := "site"
		if l.Playbook != "" {
			playbookName = strings.TrimSuffix(l.Playbook, path.Ext(l.Playbook))
		}

		parts = append(parts, playbookName)
	}

	parts = append(parts, ref, nowFunc().Format(layerNameTimestampFormat))

	return strings.Join(parts, "-")
}

// Matches reports whether other identifies the same layer for
// reconciliation purposes - the same schema variant agreeing on every
// matching attribute. Commit, branch and name are deliberately excluded so a
// revision bump replaces a layer instead of duplicating it.
func (l *Layer) Matches(other *Layer) bool {
	if other == nil || l.Version != other.Version || l.Kind != other.Kind {
		return false
	}

	return l.RepoPath() == other.RepoPath() &&
		l.Playbook == other.Playbook &&
		l.Source == other.Source &&
		boolPtrEqual(l.RequireDkms, other.RequireDkms)
}

// ValueChange records one field differing between two revisions of a layer.
type ValueChange struct {
	Old string
	New string
}

// UpdatedValues returns the schema-mapped fields - commit, branch and name
// included - whose values differ between this layer and the desired one,
// keyed by wire field name.
func (l *Layer) UpdatedValues(desired *Layer) map[string]ValueChange {
	updated := map[string]ValueChange{}

	theirs := desired.fieldValues()
	for field, oldValue := range l.fieldValues() {
		if newValue := theirs[field]; oldValue != newValue {
			updated[field] = ValueChange{Old: oldValue, New: newValue}
		}
	}

	return updated
}

// fieldValues maps wire field names to this layer's values, rendered as
// strings for change reporting.
func (l *Layer) fieldValues() map[string]string {
	dkmsField := l.Version.specialParametersKey() + "." + l.Version.requireDkmsKey()

	fields := map[string]string{
		l.Version.cloneURLKey(): l.CloneURL,
		"name":                  l.Name,
		"playbook":              l.Playbook,
		"commit":                l.Commit,
		"branch":                l.Branch,
		dkmsField:               formatBoolPtr(l.RequireDkms),
	}

	if l.Version == SchemaV3 {
		fields["source"] = l.Source
	}

	return fields
}

// ResolveBranchToCommit pins the layer by resolving its branch to the
// current head commit and clearing the branch. A layer without a branch is
// left as is.
func (l *Layer) ResolveBranchToCommit(ctx context.Context, resolver BranchResolver) error {
	if l.Branch == "" {
		return nil
	}

	if l.CloneURL == "" {
		return errors.Wrap(ErrConfiguration,
			"cannot resolve branch "+l.Branch+": layer has no clone URL to resolve against")
	}

	if l.Commit != "" {
		logrus.WithFields(logrus.Fields{
			"layer":  l.String(),
			"commit": l.Commit,
			"branch": l.Branch,
		}).Info("layer specifies both a commit and a branch; overwriting commit with branch head")
	}

	commit, err := resolver.CommitForBranch(ctx, l.CloneURL, l.Branch)
	if err != nil {
		return errors.Wrap(ErrConfiguration,
			"failed to resolve branch "+l.Branch+" to a commit hash: "+err.Error())
	}

	if commit == "" {
		return errors.Wrap(ErrConfiguration,
			"failed to resolve branch "+l.Branch+" to a commit hash: no such branch")
	}

	l.Commit = commit
	l.Branch = ""

	return nil
}

// MarshalRecord renders the layer in its schema variant's wire form, merged
// over the opaque additional data. Explicit fields win key collisions.
func (l *Layer) MarshalRecord() map[string]any {
	record := deepCopyMap(l.AdditionalData)
	if record == nil {
		record = map[string]any{}
	}

	setNonEmpty := func(key, value string) {
		if value != "" {
			record[key] = value
		}
	}

	setNonEmpty(l.Version.cloneURLKey(), l.CloneURL)
	setNonEmpty("name", l.Name)
	setNonEmpty("playbook", l.Playbook)
	setNonEmpty("commit", l.Commit)
	setNonEmpty("branch", l.Branch)

	if l.Version == SchemaV3 {
		setNonEmpty("source", l.Source)
	}

	if l.RequireDkms != nil {
		special, ok := record[l.Version.specialParametersKey()].(map[string]any)
		if !ok {
			special = map[string]any{}
		}

		special[l.Version.requireDkmsKey()] = *l.RequireDkms
		record[l.Version.specialParametersKey()] = special
	}

	return record
}

// LayerFromRecord reconstructs a layer of the given variant from its
// persisted record. Unrecognized fields are kept as additional data.
func LayerFromRecord(version SchemaVersion, kind LayerKind, record map[string]any) (*Layer, error) {
	data := deepCopyMap(record)

	spec := LayerSpec{
		CloneURL: popString(data, version.cloneURLKey()),
		Name:     popString(data, "name"),
		Playbook: popString(data, "playbook"),
		Commit:   popString(data, "commit"),
		Branch:   popString(data, "branch"),
	}

	if version == SchemaV3 {
		spec.Source = popString(data, "source")
	}

	if special, ok := data[version.specialParametersKey()].(map[string]any); ok {
		if flag, ok := special[version.requireDkmsKey()].(bool); ok {
			spec.RequireDkms = &flag

			delete(special, version.requireDkmsKey())
		}

		if len(special) == 0 {
			delete(data, version.specialParametersKey())
		}
	}

	layer, err := newLayer(version, kind, spec)
	if err != nil {
		return nil, err
	}

	if len(data) > 0 {
		layer.AdditionalData = data
	}

	return layer, nil
}

func (l *Layer) String() string {
	content := "repo path " + l.RepoPath()
	if l.Source != "" {
		content = "source " + l.Source
	}

	if l.Kind == LayerKindInventory {
		return "additional-inventory layer with " + content
	}

	playbook := "default playbook"
	if l.Playbook != "" {
		playbook = "playbook " + l.Playbook
	}

	return "layer with " + content + " and " + playbook
}

// popString removes and returns a string value; non-string values stay put
// and ride along as additional data.
func popString(m map[string]any, key string) string {
	value, ok := m[key].(string)
	if ok {
		delete(m, key)
	}

	return value
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

func formatBoolPtr(b *bool) string {
	if b == nil {
		return ""
	}

	if *b {
		return "true"
	}

	return "false"
}
