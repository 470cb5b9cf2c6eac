// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package uuid

import (
	guuid "github.com/google/uuid"
)

// Generator generates the identifier of a launch. The identifier tags every
// log line and the dumped plan of a run.
type Generator interface {
	NewString() string
}

type randomGenerator struct{}

func (randomGenerator) NewString() string {
	return guuid.NewString()
}

// NewGenerator creates a generator of random version 4 UUIDs.
func NewGenerator() Generator {
	return randomGenerator{}
}

// ConstGenerator always returns the same identifier. It is used to replay a
// launch under a known run id.
type ConstGenerator struct {
	id string
}

// NewConstGenerator creates a new ConstGenerator. An empty or malformed id
// falls back to the nil UUID so run ids always parse.
func NewConstGenerator(id string) *ConstGenerator {
	if _, err := guuid.Parse(id); err != nil {
		id = guuid.Nil.String()
	}
	return &ConstGenerator{id: id}
}

// NewString implements Generator.
func (g *ConstGenerator) NewString() string {
	return g.id
}
