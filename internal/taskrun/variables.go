package taskrun

import (
	"fmt"
	"regexp"
	"sort"
	"unicode"

	"github.com/oriys/taskrunner/internal/domain"
	"github.com/oriys/taskrunner/internal/varenc"
)

var nonWordPattern = regexp.MustCompile(`\W`)

// sanitize turns an arbitrary task id into a valid variable-tree key:
// non-word characters become "_", and a leading digit gets an "X"
// prepended (tree emitters require an identifier-shaped key for a
// declared variable name).
func sanitize(s string) string {
	out := nonWordPattern.ReplaceAllString(s, "_")
	if out != "" && unicode.IsDigit(rune(out[0])) {
		out = "X" + out
	}
	return out
}

// buildVariables assembles the wrapper environment tree. Every
// first-level key is the complete variable name the wrapper sees: the
// reserved agent variables carry the SF_ prefix, while input/resource
// locators and task parameters keep their plain names.
func buildVariables(desc *domain.TaskDescriptor, env *Env, wrapperRootDir, outputDir, resultsFile string) (*varenc.Map, error) {
	root := varenc.NewMap()
	root.SetString("SF_REPORT_ROOT", env.ReportBaseDir)
	root.SetString("SF_PRODUCT_ROOT", env.ProductBaseDir)
	root.SetString("SF_WRAPPER_ROOT", wrapperRootDir)
	root.SetString("SF_CC_URL", env.ControlCenterURL)
	root.SetString("SF_TARGET", desc.Target)
	root.SetString("SF_FRAMEWORK", desc.Framework)
	if resultsFile != "" {
		root.SetString("SF_RESULTS", resultsFile)
	}

	switch desc.Kind {
	case domain.KindExtract:
		root.SetString("SF_SHADOW_ID", desc.ShadowID)
	default:
		root.SetString("SF_JOB_ID", desc.Run.JobID)
		root.SetString("SF_TASK_ID", desc.Run.TaskID)
	}

	if err := addInputs(root, desc.Inputs); err != nil {
		return nil, err
	}
	addOutputs(root, desc.Outputs)
	if desc.Kind == domain.KindExecute {
		addResources(root, desc.Resources)
	}

	// Factory-PC parameters are the defaults; the task's own non-sf.
	// parameters are more specific and overwrite them on conflict.
	for _, k := range sortedKeys(env.Parameters) {
		root.SetString(k, env.Parameters[k])
	}
	for _, k := range sortedKeys(desc.NonReservedParameters()) {
		root.SetString(k, desc.Parameters[k])
	}

	return root, nil
}

// addInputs sets SF_INPUTS to the set of product names, a top-level
// scalar NAME=locator for every plain input, and SF_PROD[name][sanitized
// producer id]={TASK,RESULT,LOCATOR} for every combined input.
func addInputs(root *varenc.Map, inputs map[string]domain.Input) error {
	names := make([]string, 0, len(inputs))
	for n := range inputs {
		names = append(names, n)
	}
	sort.Strings(names)
	root.Set("SF_INPUTS", varenc.NewSeq(names...))

	var prod *varenc.Map
	for _, name := range names {
		in := inputs[name]
		if !in.Combined() {
			root.SetString(name, in.Locator)
			continue
		}
		if prod == nil {
			prod = varenc.NewMap()
		}
		producers := varenc.NewMap()
		seen := make(map[string]bool, len(in.Producers))
		for _, taskID := range sortedProducerKeys(in.Producers) {
			key := sanitize(taskID)
			if seen[key] {
				return &domain.ConfigError{Cause: fmt.Errorf(
					"taskrun: input %q has duplicate sanitized producer id %q (from %q)", name, key, taskID)}
			}
			seen[key] = true
			p := in.Producers[taskID]
			producers.Set(key, varenc.NewMap().
				SetString("TASK", p.TaskID).
				SetString("RESULT", p.Result).
				SetString("LOCATOR", p.Locator))
		}
		prod.Set(name, producers)
	}
	if prod != nil {
		root.Set("SF_PROD", prod)
	}
	return nil
}

// addOutputs sets SF_OUTPUTS to the lexicographically sorted set of
// output names.
func addOutputs(root *varenc.Map, outputs map[string]domain.Output) {
	names := make([]string, 0, len(outputs))
	for n := range outputs {
		names = append(names, n)
	}
	sort.Strings(names)
	root.Set("SF_OUTPUTS", varenc.NewSeq(names...))
}

// addResources sets SF_RESOURCES to the document-ordered set of
// resource refs and a top-level scalar ref=locator for each.
func addResources(root *varenc.Map, resources []domain.Resource) {
	refs := make([]string, len(resources))
	for i, r := range resources {
		refs[i] = r.Ref
	}
	root.Set("SF_RESOURCES", varenc.NewSeq(refs...))
	for _, r := range resources {
		root.SetString(r.Ref, r.Locator)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedProducerKeys(m map[string]domain.Producer) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
