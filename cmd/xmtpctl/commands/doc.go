// Package commands implements the xmtpctl command tree: local key
// management, topic inspection, content encoding and an in-process
// messaging walkthrough over the mock transport.
package commands
