// Package errors provides examples of structured error handling in serialscope.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/serialscope/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	// Create a new error with type
	err := errors.New(errors.ErrorTypeTransport, "failed to open serial port")

	// Add context details
	err = err.WithDetail("port", "/dev/ttyUSB0").
		WithDetail("baud", 115200)

	// Print the error
	fmt.Println(err.Error())

	// Output:
	// transport: failed to open serial port
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	// Simulate an underlying error
	originalErr := io.ErrUnexpectedEOF

	// Wrap the error with context
	err := errors.Wrap(originalErr, errors.ErrorTypeFile, "failed to read capture file").
		WithDetail("file", "capture.csv").
		WithDetail("offset", 4096)

	// Check the error type
	if errors.IsType(err, errors.ErrorTypeFile) {
		fmt.Println("This is a file error")
	}

	// Access the original error using Go's standard errors.Is
	if originalErr == io.ErrUnexpectedEOF {
		fmt.Println("Original error was unexpected EOF")
	}

	// Output:
	// This is a file error
	// Original error was unexpected EOF
}

// ExampleErrorType demonstrates using different error types.
func ExampleErrorType() {
	// Transport error
	portErr := errors.New(errors.ErrorTypeTransport, "read failed")
	fmt.Printf("Transport error: %v\n", portErr)

	// Validation error
	valErr := errors.New(errors.ErrorTypeValidation, "slice outside retained range").
		WithDetail("start", 0).
		WithDetail("end", 500).
		WithDetail("retained", "[200,700)")
	fmt.Printf("Validation error: %v\n", valErr)

	// Conflict error
	leaseErr := errors.New(errors.ErrorTypeConflict, "port lease held by another process").
		WithDetail("port", "/dev/ttyACM0").
		WithDetail("pid", 4312)
	fmt.Printf("Conflict error: %v\n", leaseErr)

	// Output:
	// Transport error: transport: read failed
	// Validation error: validation: slice outside retained range
	// Conflict error: conflict: port lease held by another process
}

// ExampleIsRetryable shows how to check if an error is retryable.
func ExampleIsRetryable() {
	// Create different types of errors
	readErr := errors.New(errors.ErrorTypeTransport, "device temporarily unavailable")
	schemaErr := errors.New(errors.ErrorTypeValidation, "row arity does not match schema")

	// Check if errors are retryable
	if errors.IsRetryable(readErr) {
		fmt.Println("Transport error is retryable")
	}

	if !errors.IsRetryable(schemaErr) {
		fmt.Println("Validation error is not retryable")
	}

	// Output:
	// Transport error is retryable
	// Validation error is not retryable
}

// Example_withDetails demonstrates adding multiple details to errors.
func Example_withDetails() {
	// Create an error with multiple context details
	err := errors.New(errors.ErrorTypeData, "row arity mismatch").
		WithDetail("want", 3).
		WithDetail("got", 5).
		WithDetail("line", 142)

	// The error includes all details
	fmt.Println(err.Error())

	// Output:
	// data: row arity mismatch
}

// Example_errorChain shows how to chain multiple error contexts.
func Example_errorChain() {
	// Simulate a chain of operations that can fail
	err := openPort()
	if err != nil {
		// Wrap with additional context at each level
		err = errors.Wrap(err, errors.ErrorTypeTransport, "failed to open serial port").
			WithDetail("port", "/dev/ttyUSB0")

		err = errors.Wrap(err, errors.ErrorTypeInternal, "capture failed to start").
			WithDetail("session", "session-1")

		fmt.Println("Full error chain:", err)
	}

	// Output:
	// Full error chain: internal: capture failed to start: transport: failed to open serial port: conflict: port locked by another process
}

// openPort simulates a lease conflict on the device node
func openPort() error {
	return errors.New(errors.ErrorTypeConflict, "port locked by another process").
		WithDetail("port", "/dev/ttyUSB0").
		WithDetail("pid", 4312)
}

// Example_errorHandling demonstrates proper error handling patterns.
func Example_errorHandling() {
	// Simulate processing lines with error handling
	lines := []string{"0.1,21.5", "0.2,21.6", "\"quoted\",1", "0.3,21.8"}

	for i, line := range lines {
		err := processLine(line)
		if err != nil {
			// Check error type for appropriate handling
			switch {
			case errors.IsType(err, errors.ErrorTypeValidation):
				fmt.Printf("Refusing line at index %d: %v\n", i, err)
				continue
			case errors.IsRetryable(err):
				fmt.Printf("Retrying line at index %d: %v\n", i, err)
				// Implement retry logic here
			default:
				fmt.Printf("Fatal error at index %d: %v\n", i, err)
				return
			}
		}
	}

	// Output:
	// Refusing line at index 2: validation: line outside supported dialect
}

// processLine simulates line parsing that can fail
func processLine(line string) error {
	if line == "\"quoted\",1" {
		return errors.New(errors.ErrorTypeValidation, "line outside supported dialect").
			WithDetail("line", line)
	}
	return nil
}

// ExampleIsType demonstrates checking error types.
func ExampleIsType() {
	// Create errors of different types
	leaseErr := errors.New(errors.ErrorTypeConflict, "lease already held")
	valErr := errors.New(errors.ErrorTypeValidation, "invalid input")

	// Wrap an error
	wrappedErr := errors.Wrap(leaseErr, errors.ErrorTypeTransport, "failed to open port")

	// Check error types
	fmt.Printf("Is conflict error: %v\n", errors.IsType(leaseErr, errors.ErrorTypeConflict))
	fmt.Printf("Is validation error: %v\n", errors.IsType(valErr, errors.ErrorTypeValidation))

	// IsType reports the outermost typed error in the chain
	fmt.Printf("Wrapped error is transport type: %v\n", errors.IsType(wrappedErr, errors.ErrorTypeTransport))
	fmt.Printf("Wrapped error reports conflict type: %v\n", errors.IsType(wrappedErr, errors.ErrorTypeConflict))

	// Output:
	// Is conflict error: true
	// Is validation error: true
	// Wrapped error is transport type: true
	// Wrapped error reports conflict type: false
}

// Example_customErrorHandling shows how to implement custom error handling logic.
func Example_customErrorHandling() {
	// Define a custom error handler
	handleError := func(err error) {
		if err == nil {
			return
		}

		// Extract error details
		if serr, ok := err.(*errors.Error); ok {
			fmt.Printf("Error Type: %s\n", serr.Type)
			fmt.Printf("Message: %s\n", serr.Message)

			if len(serr.Details) > 0 {
				fmt.Println("Details:")
				// Print details in a deterministic order
				if port, ok := serr.Details["port"]; ok {
					fmt.Printf("  port: %v\n", port)
				}
				if pid, ok := serr.Details["pid"]; ok {
					fmt.Printf("  pid: %v\n", pid)
				}
				if age, ok := serr.Details["age"]; ok {
					fmt.Printf("  age: %v\n", age)
				}
			}
		}
	}

	// Create and handle an error
	err := errors.New(errors.ErrorTypeConflict, "port lease is stale").
		WithDetail("port", "/dev/ttyUSB0").
		WithDetail("pid", 4312).
		WithDetail("age", "2h")

	handleError(err)

	// Output:
	// Error Type: conflict
	// Message: port lease is stale
	// Details:
	//   port: /dev/ttyUSB0
	//   pid: 4312
	//   age: 2h
}
