// SPDX-License-Identifier: MPL-2.0

// Package connection serves the device protocol on TCP ports.
//
// A Connection owns one listening port and at most one client at a time. Its
// accept and read loops poll with short deadlines so Close is observed within
// one PollInterval. Outbound traffic goes through SendData, which applies the
// client's ClientParams delivery policy, or Reply, which always writes. The
// Registry keeps every Connection by port and fans broadcasts out to them.
package connection
