// Package e2e_test runs the end-to-end scenarios against a freshly built
// image and a live engine, styled after aistore's dsort_suite_test.go
// Ginkgo/Gomega bootstrap.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package e2e_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestE2E(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Infinite Map End-to-End Suite")
}
