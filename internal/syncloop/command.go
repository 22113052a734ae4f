package syncloop

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/oriys/taskrunner/internal/domain"
)

// responseDoc is a parsed Synchronize response: its top-level command
// elements, in document order. Order is material — <start> and <wait>
// may coexist, and the last <wait> wins.
type responseDoc struct {
	Commands []command
}

// command is the sum type of the five recognized response elements,
// plus invalidCmd for anything else.
type command interface{ isCommand() }

type startCmd struct{ desc *domain.TaskDescriptor }
type extractCmd struct{ desc *domain.TaskDescriptor }
type abortCmd struct{ jobID, taskID, shadowID string }
type waitCmd struct{ seconds int }
type exitCmd struct{}
type invalidCmd struct{ err error }

func (startCmd) isCommand()   {}
func (extractCmd) isCommand() {}
func (abortCmd) isCommand()   {}
func (waitCmd) isCommand()    {}
func (exitCmd) isCommand()    {}
func (invalidCmd) isCommand() {}

// parseResponse reads one Synchronize response body, validating that
// the root element is <response> and decoding each child element in
// the order it appears. A malformed command element does not abort the
// whole parse: it becomes an invalidCmd, logged by the caller and
// otherwise skipped, so one bad command never stalls the loop.
func parseResponse(r io.Reader) (*responseDoc, error) {
	dec := xml.NewDecoder(r)
	doc := &responseDoc{}
	rootSeen := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &domain.ProtocolError{Cause: fmt.Errorf("syncloop: xml token: %w", err)}
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !rootSeen {
			if se.Name.Local != "response" {
				return nil, &domain.ProtocolError{Cause: fmt.Errorf("syncloop: root element %q, want response", se.Name.Local)}
			}
			rootSeen = true
			continue
		}

		cmd, err := decodeCommand(dec, se)
		if err != nil {
			doc.Commands = append(doc.Commands, invalidCmd{err: err})
			continue
		}
		doc.Commands = append(doc.Commands, cmd)
	}

	if !rootSeen {
		return nil, &domain.ProtocolError{Cause: fmt.Errorf("syncloop: empty response body")}
	}
	return doc, nil
}

func decodeCommand(dec *xml.Decoder, se xml.StartElement) (command, error) {
	switch se.Name.Local {
	case "start":
		var x xmlStart
		if err := dec.DecodeElement(&x, &se); err != nil {
			return nil, fmt.Errorf("syncloop: decode <start>: %w", err)
		}
		return startCmd{desc: x.toDescriptor()}, nil

	case "extract":
		var x xmlExtract
		if err := dec.DecodeElement(&x, &se); err != nil {
			return nil, fmt.Errorf("syncloop: decode <extract>: %w", err)
		}
		return extractCmd{desc: x.toDescriptor()}, nil

	case "abort":
		var x xmlAbort
		if err := dec.DecodeElement(&x, &se); err != nil {
			return nil, fmt.Errorf("syncloop: decode <abort>: %w", err)
		}
		return abortCmd{jobID: x.JobID, taskID: x.TaskID, shadowID: x.ShadowID}, nil

	case "wait":
		var x xmlWait
		if err := dec.DecodeElement(&x, &se); err != nil {
			return nil, fmt.Errorf("syncloop: decode <wait>: %w", err)
		}
		n, err := strconv.Atoi(x.Seconds)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("syncloop: invalid <wait seconds=%q>", x.Seconds)
		}
		return waitCmd{seconds: n}, nil

	case "exit":
		if err := dec.Skip(); err != nil {
			return nil, fmt.Errorf("syncloop: decode <exit>: %w", err)
		}
		return exitCmd{}, nil

	default:
		if err := dec.Skip(); err != nil {
			return nil, fmt.Errorf("syncloop: invalid command %q: %w", se.Name.Local, err)
		}
		return nil, fmt.Errorf("syncloop: invalid command %q", se.Name.Local)
	}
}

// --- wire shapes for the task run descriptor and the command
// elements ---

type xmlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlTask struct {
	Target     string         `xml:"target,attr"`
	Framework  string         `xml:"framework,attr"`
	Script     string         `xml:"script,attr"`
	Parameters []xmlParameter `xml:"parameter"`
}

type xmlProducer struct {
	TaskID  string `xml:"taskId,attr"`
	Locator string `xml:"locator,attr"`
	Result  string `xml:"result,attr"`
}

type xmlInput struct {
	Name      string        `xml:"name,attr"`
	Locator   string        `xml:"locator,attr"`
	Producers []xmlProducer `xml:"producers>producer"`
}

type xmlOutput struct {
	Name string `xml:"name,attr"`
}

type xmlResource struct {
	Ref        string         `xml:"ref,attr"`
	Locator    string         `xml:"locator,attr"`
	Parameters []xmlParameter `xml:"parameter"`
}

type xmlRun struct {
	JobID  string `xml:"jobId,attr"`
	TaskID string `xml:"taskId,attr"`
	RunID  string `xml:"runId,attr"`
}

type xmlStart struct {
	Run       xmlRun        `xml:"run"`
	Task      xmlTask       `xml:"task"`
	Inputs    []xmlInput    `xml:"inputs>input"`
	Outputs   []xmlOutput   `xml:"outputs>output"`
	Resources []xmlResource `xml:"resources>resource"`
}

func (x xmlStart) toDescriptor() *domain.TaskDescriptor {
	return &domain.TaskDescriptor{
		Kind:       domain.KindExecute,
		Run:        domain.RunID{JobID: x.Run.JobID, TaskID: x.Run.TaskID, Run: x.Run.RunID},
		Target:     x.Task.Target,
		Framework:  x.Task.Framework,
		Script:     x.Task.Script,
		Parameters: paramMap(x.Task.Parameters),
		Inputs:     buildInputs(x.Inputs),
		Outputs:    buildOutputs(x.Outputs),
		Resources:  buildResources(x.Resources),
	}
}

type xmlShadowRun struct {
	ShadowID string `xml:"shadowId,attr"`
}

type xmlExtract struct {
	ShadowRun xmlShadowRun `xml:"shadowrun"`
	Task      xmlTask      `xml:"task"`
	Inputs    []xmlInput   `xml:"inputs>input"`
	Outputs   []xmlOutput  `xml:"outputs>output"`
}

func (x xmlExtract) toDescriptor() *domain.TaskDescriptor {
	return &domain.TaskDescriptor{
		Kind:       domain.KindExtract,
		ShadowID:   x.ShadowRun.ShadowID,
		Target:     x.Task.Target,
		Framework:  x.Task.Framework,
		Script:     x.Task.Script,
		Parameters: paramMap(x.Task.Parameters),
		Inputs:     buildInputs(x.Inputs),
		Outputs:    buildOutputs(x.Outputs),
	}
}

type xmlAbort struct {
	JobID    string `xml:"jobId,attr"`
	TaskID   string `xml:"taskId,attr"`
	ShadowID string `xml:"shadowId,attr"`
}

type xmlWait struct {
	Seconds string `xml:"seconds,attr"`
}

func paramMap(xs []xmlParameter) map[string]string {
	out := make(map[string]string, len(xs))
	for _, p := range xs {
		out[p.Name] = p.Value
	}
	return out
}

func buildInputs(xs []xmlInput) map[string]domain.Input {
	out := make(map[string]domain.Input, len(xs))
	for _, xi := range xs {
		var producers map[string]domain.Producer
		if len(xi.Producers) > 0 {
			producers = make(map[string]domain.Producer, len(xi.Producers))
			for _, p := range xi.Producers {
				producers[p.TaskID] = domain.Producer{TaskID: p.TaskID, Locator: p.Locator, Result: p.Result}
			}
		}
		out[xi.Name] = domain.Input{Name: xi.Name, Locator: xi.Locator, Producers: producers}
	}
	return out
}

func buildOutputs(xs []xmlOutput) map[string]domain.Output {
	out := make(map[string]domain.Output, len(xs))
	for _, xo := range xs {
		out[xo.Name] = domain.Output{Name: xo.Name}
	}
	return out
}

func buildResources(xs []xmlResource) []domain.Resource {
	out := make([]domain.Resource, 0, len(xs))
	for _, xr := range xs {
		out = append(out, domain.Resource{Ref: xr.Ref, Locator: xr.Locator, Parameters: paramMap(xr.Parameters)})
	}
	return out
}
