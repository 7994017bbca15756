// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package aksclient

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOffloadReturnsResultOnCompletion(t *testing.T) {
	v, err := offload(context.Background(), func() (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("offload() returned unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("offload() = %d, want 42", v)
	}
}

func TestOffloadPropagatesFnError(t *testing.T) {
	wantErr := errors.New("boom")
	_, err := offload(context.Background(), func() (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("offload() err = %v, want %v", err, wantErr)
	}
}

func TestOffloadReturnsEarlyOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := make(chan struct{})
	defer close(block)

	_, err := offload(ctx, func() (int, error) {
		<-block
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("offload() err = %v, want context.Canceled", err)
	}
}

func TestOffloadRespectsDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	block := make(chan struct{})
	defer close(block)

	start := time.Now()
	_, err := offload(ctx, func() (int, error) {
		<-block
		return 0, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("offload() err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("offload() took %v, want it to return promptly after the deadline", elapsed)
	}
}
