/**
 * Copyright 2020 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package model

import "encoding/json"

// GerritDataSource marks records synthesized from a Gerrit diff.
const GerritDataSource = "GERRIT"

// Golden is the wire form of a cached golden.
type Golden struct {
	// ID is stable for the lifetime of the remote artifact.
	ID string `json:"id"`

	Result string `json:"result"`

	// Label is the golden identifier reported by the test.
	Label string `json:"label"`

	// GoldenRepoPath is relative to the source checkout.
	GoldenRepoPath string `json:"goldenRepoPath"`

	Updated        bool   `json:"updated"`
	TestClassName  string `json:"testClassName"`
	TestMethodName string `json:"testMethodName"`
	TestTime       string `json:"testTime"`
	GoldenName     string `json:"goldenName"`

	ActualURL string `json:"actualUrl"`

	// ExpectedURL is only set when the checkout holds an expected file.
	ExpectedURL string `json:"expectedUrl,omitempty"`

	VideoURL string `json:"videoUrl,omitempty"`
}

// GerritGolden carries both sides of a Gerrit diff inline.
type GerritGolden struct {
	ID             string          `json:"id"`
	Result         string          `json:"result"`
	Label          string          `json:"label"`
	GoldenRepoPath string          `json:"goldenRepoPath"`
	Updated        bool            `json:"updated"`
	TestClassName  string          `json:"testClassName"`
	TestMethodName string          `json:"testMethodName"`
	TestTime       string          `json:"testTime"`
	ActualData     json.RawMessage `json:"actualData"`
	ExpectedData   json.RawMessage `json:"expectedData"`
	DataSource     string          `json:"dataSource"`
	IsLocalData    bool            `json:"isLocalData"`
}

// PromoteReport maps golden ids to the outcome of their promotion.
type PromoteReport map[string]string

// ModeRequest selects the active mode.
type ModeRequest struct {
	Mode string `json:"mode" validate:"required"`
}

type RefreshRequest struct {
	Clear bool `json:"clear"`
}

type PresubmitListRequest struct {
	InvocationID string `json:"invocation_id" validate:"required"`
}

type FetchArtifactRequest struct {
	ResourceID string `json:"resource_id" validate:"required"`
}

type PromoteRequest struct {
	SelectedGoldenIDs []string `json:"selectedGoldenIds"`
}
