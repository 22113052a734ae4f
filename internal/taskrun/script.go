package taskrun

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oriys/taskrunner/internal/runfactory"
	"github.com/oriys/taskrunner/internal/varenc"
)

// startupFile names the language-specific startup script the engine
// writes into the run's output directory, ahead of invoking the
// interpreter on it.
func startupFile(lang runfactory.Language) string {
	switch lang {
	case runfactory.LangBatch:
		return "startup.bat"
	case runfactory.LangMake:
		return "startup.mk"
	case runfactory.LangPerl:
		return "startup.pl"
	case runfactory.LangPython:
		return "startup.py"
	case runfactory.LangRuby:
		return "startup.rb"
	case runfactory.LangAnt:
		return "startup.xml"
	case runfactory.LangNAnt:
		return "startup.build"
	case runfactory.LangWSH:
		return "startup.wsf"
	default:
		return "startup.sh"
	}
}

// renderStartupScript writes the startup script for wrapper's language:
// one declaration per first-level variable in root, then a chain to the
// wrapper file itself. Each language's chaining idiom mirrors how its
// interpreter natively includes another file of the same kind.
func renderStartupScript(wrapper *runfactory.Wrapper, root *varenc.Map) (string, error) {
	switch wrapper.Lang {
	case runfactory.LangShell:
		sh := shellFromShebang(wrapper.Path)
		return "#!" + sh + "\nset -e\n" + varenc.RenderShell(root) +
			"exec " + sh + " \"" + wrapper.Path + "\"\n", nil

	case runfactory.LangBatch:
		return "@echo off\r\n" + varenc.RenderBatch(root) +
			"call \"" + wrapper.Path + "\"\r\n", nil

	case runfactory.LangMake:
		return varenc.RenderMake(root) +
			"\ninclude " + wrapper.Path + "\n", nil

	case runfactory.LangPerl:
		return "#!/usr/bin/perl\nuse strict;\nuse warnings;\n" + varenc.RenderPerl(root) +
			"do '" + wrapper.Path + "' or die \"$@\" if $@;\n", nil

	case runfactory.LangPython:
		return "#!/usr/bin/env python3\n" + varenc.RenderPython(root) +
			fmt.Sprintf("exec(compile(open(%q).read(), %q, 'exec'))\n", wrapper.Path, wrapper.Path), nil

	case runfactory.LangRuby:
		return "#!/usr/bin/env ruby\n" + varenc.RenderRuby(root) +
			fmt.Sprintf("load %q\n", wrapper.Path), nil

	case runfactory.LangAnt:
		return "<project name=\"sf-startup\" default=\"sf-run\">\n" +
			varenc.RenderAnt(root) +
			"<import file=\"" + xmlEscapeAttr(wrapper.Path) + "\"/>\n</project>\n", nil

	case runfactory.LangNAnt:
		return "<project>\n" +
			varenc.RenderNAnt(root) +
			"<include buildfile=\"" + xmlEscapeAttr(wrapper.Path) + "\"/>\n</project>\n", nil

	case runfactory.LangWSH:
		body, err := os.ReadFile(wrapper.Path)
		if err != nil {
			return "", err
		}
		commonDir := filepath.Dir(filepath.Dir(wrapper.Path))
		return varenc.RenderWSF(commonDir, varenc.RenderWSH(root), string(body), varenc.LanguageTag(wrapper.Path))

	default:
		return "", fmt.Errorf("taskrun: unsupported wrapper language %d", wrapper.Lang)
	}
}

func xmlEscapeAttr(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	return s
}

// shellFromShebang reads the wrapper's shebang line and returns the
// interpreter it names, defaulting to /bin/sh when the wrapper has no
// shebang (or cannot be read at all; launching will surface that error).
func shellFromShebang(wrapperPath string) string {
	f, err := os.Open(wrapperPath)
	if err != nil {
		return "/bin/sh"
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "/bin/sh"
	}
	line := strings.TrimSpace(scanner.Text())
	if !strings.HasPrefix(line, "#!") {
		return "/bin/sh"
	}
	fields := strings.Fields(strings.TrimPrefix(line, "#!"))
	switch {
	case len(fields) == 0:
		return "/bin/sh"
	case filepath.Base(fields[0]) == "env" && len(fields) > 1:
		return fields[1]
	default:
		return fields[0]
	}
}

// buildArgv returns the interpreter invocation for the startup script,
// with the configured process wrapper (if any) prepended.
func buildArgv(wrapper *runfactory.Wrapper, startupPath, outputDir, processWrapper string) []string {
	var argv []string
	switch wrapper.Lang {
	case runfactory.LangBatch:
		argv = []string{startupPath}
	case runfactory.LangMake:
		argv = []string{"make", "-C", outputDir, "-f", startupPath}
	case runfactory.LangPerl:
		argv = []string{"perl", "-w", startupPath}
	case runfactory.LangPython:
		argv = []string{"python", "-u", startupPath}
	case runfactory.LangRuby:
		argv = []string{"ruby", "--external-encoding=UTF-8", startupPath}
	case runfactory.LangAnt:
		argv = []string{"ant", "-f", startupPath}
	case runfactory.LangNAnt:
		argv = []string{"nant", "-buildfile:" + startupPath}
	case runfactory.LangWSH:
		argv = []string{"CScript", "//Nologo", startupPath}
	default:
		argv = []string{shellFromShebang(wrapper.Path), startupPath}
	}
	if processWrapper != "" {
		argv = append([]string{processWrapper}, argv...)
	}
	return argv
}

// envDeltas returns the per-language environment variable overrides
// layered on top of the flattened variable tree: Python and Perl both
// need an explicit push towards UTF-8 since their default text encoding
// is locale-dependent.
func envDeltas(lang runfactory.Language) []string {
	switch lang {
	case runfactory.LangPython:
		return []string{"PYTHONIOENCODING=UTF-8", "PYTHONUTF8=1"}
	case runfactory.LangPerl:
		return []string{"PERL_UNICODE=SDA"}
	default:
		return nil
	}
}

// flattenEnv renders root into a flat "KEY=value" slice suitable for
// exec.Cmd.Env: unlike the startup script's rendering, values here are
// never language-quoted.
func flattenEnv(root *varenc.Map) []string {
	entries := varenc.Flatten(root)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		key := strings.Join(e.Path, "_")
		if e.Keys {
			key += "_KEYS"
		}
		out = append(out, key+"="+e.Value)
	}
	return out
}
