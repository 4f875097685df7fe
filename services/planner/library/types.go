// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package library

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// libraryValidate is the validator instance for domain and problem files.
// Initialized in init() with the symbol validator.
var libraryValidate *validator.Validate

func init() {
	libraryValidate = validator.New()

	// Names end up inside literal keys like "at(robot,room1)" and
	// "!at(robot,room1)".
	_ = libraryValidate.RegisterValidation("symbol", validateSymbol)
}

// validateSymbol rejects names containing characters that literal keys
// and step labels use as separators.
func validateSymbol(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s != "" && !strings.ContainsAny(s, " \t\n(),|#<[]!")
}

// -----------------------------------------------------------------------------
// Domain
// -----------------------------------------------------------------------------

// Domain is a typed planning domain.
type Domain struct {
	Name      string     `yaml:"name" validate:"required,symbol"`
	Types     []Type     `yaml:"types" validate:"dive"`
	Operators []Operator `yaml:"operators" validate:"required,min=1,dive"`
}

// Type declares an object type. An empty Parent means the root type
// "object".
type Type struct {
	Name   string `yaml:"name" validate:"required,symbol"`
	Parent string `yaml:"parent" validate:"omitempty,symbol"`
}

// Operator is an action schema.
type Operator struct {
	Name          string      `yaml:"name" validate:"required,symbol"`
	Params        []Param     `yaml:"params" validate:"dive"`
	Preconditions []Atom      `yaml:"preconditions" validate:"dive"`
	Effects       []Atom      `yaml:"effects" validate:"dive"`
	Height        int         `yaml:"height" validate:"gte=0,lte=16"`
	Subplan       *SubplanDef `yaml:"subplan" validate:"omitempty"`
}

// Param is a typed operator parameter.
type Param struct {
	Name string `yaml:"name" validate:"required,symbol"`
	Type string `yaml:"type" validate:"omitempty,symbol"`
}

// Atom is a literal schema. Args name operator parameters or objects.
type Atom struct {
	Predicate string   `yaml:"predicate" validate:"required,symbol"`
	Args      []string `yaml:"args" validate:"dive,symbol"`

	// Truth defaults to true when omitted.
	Truth *bool `yaml:"truth"`
}

// Polarity returns the truth value of the atom.
func (a Atom) Polarity() bool {
	return a.Truth == nil || *a.Truth
}

// String renders the atom.
func (a Atom) String() string {
	prefix := ""
	if !a.Polarity() {
		prefix = "not-"
	}
	return fmt.Sprintf("%s%s(%s)", prefix, a.Predicate, strings.Join(a.Args, ","))
}

// SubplanDef is the decomposition of a compound operator.
type SubplanDef struct {
	Steps     []SubStep     `yaml:"steps" validate:"required,min=1,dive"`
	Orderings []SubOrdering `yaml:"orderings" validate:"dive"`
	Links     []SubLink     `yaml:"links" validate:"dive"`
}

// SubStep instantiates an operator inside a subplan.
type SubStep struct {
	ID       string   `yaml:"id" validate:"required,symbol"`
	Operator string   `yaml:"operator" validate:"required,symbol"`
	Args     []string `yaml:"args" validate:"dive,symbol"`
}

// SubOrdering orders two sub-steps by ID.
type SubOrdering struct {
	Before string `yaml:"before" validate:"required,symbol"`
	After  string `yaml:"after" validate:"required,symbol,nefield=Before"`
}

// SubLink is a causal link between two sub-steps.
type SubLink struct {
	Producer  string `yaml:"producer" validate:"required,symbol"`
	Consumer  string `yaml:"consumer" validate:"required,symbol,nefield=Producer"`
	Condition Atom   `yaml:"condition"`
}

// -----------------------------------------------------------------------------
// Problem
// -----------------------------------------------------------------------------

// Problem is an initial state and goal over a set of objects.
type Problem struct {
	Name    string   `yaml:"name" validate:"required,symbol"`
	Domain  string   `yaml:"domain" validate:"omitempty,symbol"`
	Objects []Object `yaml:"objects" validate:"dive"`
	Init    []Atom   `yaml:"init" validate:"dive"`
	Goal    []Atom   `yaml:"goal" validate:"dive"`
}

// Object is a typed constant.
type Object struct {
	Name string `yaml:"name" validate:"required,symbol"`
	Type string `yaml:"type" validate:"omitempty,symbol"`
}

// Validate checks struct tags on the domain.
func (d *Domain) Validate() error {
	if err := libraryValidate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	return nil
}

// Validate checks struct tags on the problem.
func (p *Problem) Validate() error {
	if err := libraryValidate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProblem, err)
	}
	return nil
}
