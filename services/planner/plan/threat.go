// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import "github.com/AleutianAI/AleutianPOCL/services/planner/graph"

// -----------------------------------------------------------------------------
// Threat Detection
// -----------------------------------------------------------------------------

// DetectThreatsForLink tests every step of p against one causal link.
//
// Description:
//
//	Used right after a link is added. Steps proven harmless are recorded
//	in the link's non-threat cache so later scans skip them.
//
// Inputs:
//
//	lib - The grounded library.
//	link - The link to protect.
//
// Outputs:
//
//	[]Flaw - One tclf flaw per threatening step, in step order.
func (p *Plan) DetectThreatsForLink(lib Library, link CausalLink) []Flaw {
	var out []Flaw
	for _, s := range p.Steps() {
		if f, ok := p.testThreat(lib, link, s); ok {
			out = append(out, f)
		}
	}
	return out
}

// DetectThreatsForStep tests one step against every causal link of p.
func (p *Plan) DetectThreatsForStep(lib Library, stepID string) []Flaw {
	step, ok := p.Step(stepID)
	if !ok {
		return nil
	}
	var out []Flaw
	for _, l := range p.Links.Links() {
		if f, ok := p.testThreat(lib, l, step); ok {
			out = append(out, f)
		}
	}
	return out
}

// DetectThreats tests every (link, step) pair of p.
func (p *Plan) DetectThreats(lib Library) []Flaw {
	var out []Flaw
	steps := p.Steps()
	for _, l := range p.Links.Links() {
		for _, s := range steps {
			if f, ok := p.testThreat(lib, l, s); ok {
				out = append(out, f)
			}
		}
	}
	return out
}

// testThreat decides whether step threatens link.
//
// A step is harmless if it is an endpoint of the link, already ordered
// after the consumer or before the producer, not indexed by the library
// as a threat to the consumer, or has no effect opposite the link
// condition. Harmless results are cached; threats are not, so re-testing
// after the ordering changes sees the new ordering.
func (p *Plan) testThreat(lib Library, link CausalLink, step graph.Element) (Flaw, bool) {
	if p.Links.IsNonThreat(link, step.ID) {
		return Flaw{}, false
	}
	if step.ID == link.Producer || step.ID == link.Consumer ||
		p.Ordering.IsPath(link.Consumer, step.ID) ||
		p.Ordering.IsPath(step.ID, link.Producer) {
		p.Links.MarkNonThreat(link, step.ID)
		return Flaw{}, false
	}

	consumer, ok := p.Step(link.Consumer)
	if !ok || !lib.ThreatensConsumer(consumer.StepNumber, step.StepNumber) {
		p.Links.MarkNonThreat(link, step.ID)
		return Flaw{}, false
	}

	for _, eff := range p.Action(step.ID).Effects() {
		if eff.IsOpposite(link.Condition) {
			return Threat(step.ID, link), true
		}
	}
	p.Links.MarkNonThreat(link, step.ID)
	return Flaw{}, false
}
