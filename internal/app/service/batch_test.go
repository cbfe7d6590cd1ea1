package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunBatch_AllSucceed(t *testing.T) {
	inputs := []int{1, 2, 3}

	result := runBatch(inputs, func(_ int, n int) string {
		return fmt.Sprintf("%d", n)
	}, func(n int) (int, error) {
		return n * 2, nil
	})

	assert.False(t, result.Partial())
	assert.Equal(t, 3, result.SuccessCount)
	assert.Equal(t, 0, result.FailureCount)
	assert.Equal(t, []int{2, 4, 6}, result.Succeeded)
	assert.Empty(t, result.Errors)
}

func TestRunBatch_FailureDoesNotAbort(t *testing.T) {
	inputs := []int{1, 2, 3, 4}

	result := runBatch(inputs, func(_ int, n int) string {
		return fmt.Sprintf("%d", n)
	}, func(n int) (int, error) {
		if n%2 == 0 {
			return 0, errors.New("even numbers rejected")
		}
		return n, nil
	})

	assert.True(t, result.Partial())
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 2, result.FailureCount)
	// Successes keep input order.
	assert.Equal(t, []int{1, 3}, result.Succeeded)
	assert.Equal(t, []string{
		"item 2: even numbers rejected",
		"item 4: even numbers rejected",
	}, result.Errors)
}

func TestRunBatch_EmptyInput(t *testing.T) {
	result := runBatch([]string{}, func(i int, _ string) string {
		return fmt.Sprintf("%d", i)
	}, func(s string) (string, error) {
		return s, nil
	})

	assert.False(t, result.Partial())
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 0, result.FailureCount)
	assert.Empty(t, result.Succeeded)
}

func TestRunBatch_AllFail(t *testing.T) {
	result := runBatch([]int{7, 8}, func(_ int, n int) string {
		return fmt.Sprintf("%d", n)
	}, func(int) (int, error) {
		return 0, errors.New("boom")
	})

	assert.True(t, result.Partial())
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 2, result.FailureCount)
	assert.Len(t, result.Errors, 2)
}
