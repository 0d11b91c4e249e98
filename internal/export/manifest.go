package export

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/evidencerec/core/internal/canon"
	"github.com/evidencerec/core/internal/errs"
)

const (
	TutorialPack = "tutorial_pack"
	ProofBundle  = "proof_bundle"
	RunbookKind  = "runbook"

	manifestVersion  = 1
	manifestFileName = "manifest.json"
)

// ManifestFileEntry is one entry in a manifest's files list.
type ManifestFileEntry struct {
	Path       string `json:"path"`
	HashBlake3 string `json:"hash_blake3"`
	SizeBytes  int64  `json:"size_bytes"`
}

// ManifestPolicy records the gate outcomes a verifier must check.
type ManifestPolicy struct {
	EvidenceCoveragePassed bool `json:"evidence_coverage_passed"`
	TutorialStrictPassed   bool `json:"tutorial_strict_passed"`
	OfflinePolicyEnforced  bool `json:"offline_policy_enforced"`
}

// ModelPin records which model backed a given role at export time.
type ModelPin struct {
	Role    string `json:"role"`
	ModelID string `json:"model_id"`
	Digest  string `json:"digest"`
}

// Manifest is the v1 bundle manifest.
type Manifest struct {
	ManifestVersion int                 `json:"manifest_version"`
	BundleType      string              `json:"bundle_type"`
	SessionID       string              `json:"session_id"`
	CreatedAtUTC    string              `json:"created_at_utc"`
	Files           []ManifestFileEntry `json:"files"`
	Warnings        []string            `json:"warnings"`
	Policy          ManifestPolicy      `json:"policy"`
	ModelPins       []ModelPin          `json:"model_pins"`
	ManifestHash    string              `json:"manifest_hash"`
	BundleHash      string              `json:"bundle_hash"`
}

// computeBundleHash implements I7: BLAKE3 over the concatenation, for files
// sorted by path, of "{path}\n{hash_blake3}\n".
func computeBundleHash(files []ManifestFileEntry) string {
	sorted := make([]ManifestFileEntry, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var b strings.Builder
	for _, f := range sorted {
		b.WriteString(f.Path)
		b.WriteByte('\n')
		b.WriteString(f.HashBlake3)
		b.WriteByte('\n')
	}
	return canon.Hash([]byte(b.String()))
}

// computeManifestHash implements I7's manifest_hash: BLAKE3 of the canonical
// JSON of the manifest with manifest_hash set to "".
func computeManifestHash(m Manifest) (string, error) {
	cp := m
	cp.ManifestHash = ""
	return canon.HashJSON(cp)
}

// walkOutputDirFiles lists regular files under dir, relative to dir, in
// sorted order, excluding manifest.json at the root.
func walkOutputDirFiles(dir string, readFile func(relPath string) ([]byte, error), list func() ([]string, error)) ([]ManifestFileEntry, error) {
	paths, err := list()
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []ManifestFileEntry
	for _, p := range paths {
		if p == manifestFileName {
			continue
		}
		b, err := readFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, ManifestFileEntry{
			Path:       filepath.ToSlash(p),
			HashBlake3: canon.Hash(b),
			SizeBytes:  int64(len(b)),
		})
	}
	return out, nil
}

func missingOrExtraFiles(declared []ManifestFileEntry, actual []string) (missing, extra []string) {
	declaredSet := make(map[string]bool, len(declared))
	for _, f := range declared {
		declaredSet[f.Path] = true
	}
	actualSet := make(map[string]bool, len(actual))
	for _, p := range actual {
		if p == manifestFileName {
			continue
		}
		actualSet[p] = true
	}
	for p := range declaredSet {
		if !actualSet[p] {
			missing = append(missing, p)
		}
	}
	for p := range actualSet {
		if !declaredSet[p] {
			extra = append(extra, p)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}

func newExportGateFailedFromIssues(issues []string) error {
	return errs.NewExportGateFailed("export verification failed: %s", strings.Join(issues, "; ")).
		WithDetails(map[string]any{"issues": issues})
}
