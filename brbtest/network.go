// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package brbtest provides a simulated in-memory network for driving
// processes in tests. Packets are delivered by explicit calls, so tests
// control interleavings precisely.
package brbtest

import (
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/brb/brb"
	"github.com/luxfi/brb/config"
	"github.com/luxfi/brb/datatype"
	"github.com/luxfi/brb/identity"
	"github.com/luxfi/brb/utils/set"
)

// Network is a simulated in-memory network of processes.
type Network struct {
	procs []*brb.Process

	// Delivered logs every packet delivered, in order.
	Delivered []brb.Packet

	// NumPackets counts every packet sent over the network's lifetime.
	NumPackets int

	// Invalid counts rejected packets per recipient.
	Invalid map[identity.Actor]int
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		Invalid: make(map[identity.Actor]int),
	}
}

// InitProcess creates a process replicating the data type built by [newDT]
// and adds it to the network. The process does not request membership
// automatically.
func (n *Network) InitProcess(newDT datatype.New) identity.Actor {
	kp, err := identity.GenerateKeypair()
	if err != nil {
		panic(err)
	}
	proc, err := brb.New(
		kp,
		newDT,
		config.DefaultParameters(),
		log.NewNoOpLogger(),
		prometheus.NewRegistry(),
	)
	if err != nil {
		panic(err)
	}
	n.procs = append(n.procs, proc)
	return proc.Actor()
}

// Proc returns the process identified by [actor], nil if absent.
func (n *Network) Proc(actor identity.Actor) *brb.Process {
	for _, p := range n.procs {
		if p.Actor() == actor {
			return p
		}
	}
	return nil
}

// Procs returns every process in the network.
func (n *Network) Procs() []*brb.Process {
	return n.procs
}

// Actors returns the identity of every process.
func (n *Network) Actors() set.Set[identity.Actor] {
	out := set.NewSet[identity.Actor](len(n.procs))
	for _, p := range n.procs {
		out.Add(p.Actor())
	}
	return out
}

// Members returns, over every process p, the largest set of p's peers that
// also count p as a peer. Peers in the set are not checked against each
// other.
func (n *Network) Members() set.Set[identity.Actor] {
	var best set.Set[identity.Actor]
	for _, p := range n.procs {
		peers, err := p.Peers()
		if err != nil {
			continue
		}
		mutual := set.NewSet[identity.Actor](peers.Len())
		for peer := range peers {
			peerProc := n.Proc(peer)
			if peerProc == nil {
				continue
			}
			peerPeers, err := peerProc.Peers()
			if err != nil {
				continue
			}
			if peerPeers.Contains(p.Actor()) {
				mutual.Add(peer)
			}
		}
		if best == nil || mutual.Len() > best.Len() {
			best = mutual
		}
	}
	if best == nil {
		return set.NewSet[identity.Actor](0)
	}
	return best
}

// DeliverPacket hands [packet] to its destination and returns whatever the
// destination emits. Rejected packets are counted and produce nothing.
func (n *Network) DeliverPacket(packet brb.Packet) []brb.Packet {
	n.NumPackets++
	n.Delivered = append(n.Delivered, packet)

	proc := n.Proc(packet.Dest)
	if proc == nil {
		return nil
	}
	out, err := proc.HandlePacket(packet)
	if err != nil {
		n.Invalid[packet.Dest]++
		return nil
	}
	return out
}

// RunPacketsToCompletion delivers [packets] and every packet produced in
// response, until the network is quiet.
func (n *Network) RunPacketsToCompletion(packets []brb.Packet) {
	for len(packets) > 0 {
		packet := packets[0]
		packets = append(packets[1:], n.DeliverPacket(packet)...)
	}
}

// AntiEntropy runs a full reconciliation round: every process asks every one
// of its peers for missing history, and all resulting packets are delivered.
func (n *Network) AntiEntropy() {
	var packets []brb.Packet
	for _, p := range n.procs {
		peers, err := p.Peers()
		if err != nil {
			continue
		}
		dests := peers.List()
		identity.SortActors(dests)
		for _, peer := range dests {
			packet, err := p.AntiEntropy(peer)
			if err != nil {
				continue
			}
			packets = append(packets, packet)
		}
	}
	n.RunPacketsToCompletion(packets)
}

// CountInvalidPackets returns the number of packets rejected by any process.
func (n *Network) CountInvalidPackets() int {
	total := 0
	for _, count := range n.Invalid {
		total += count
	}
	return total
}

// MembersAreInAgreement reports whether every member's delivery history is
// identical.
func (n *Network) MembersAreInAgreement() bool {
	var reference map[identity.Actor][]ids.ID
	for member := range n.Members() {
		proc := n.Proc(member)
		if proc == nil {
			continue
		}
		hist := historyIDs(proc)
		if reference == nil {
			reference = hist
			continue
		}
		if !historiesEqual(reference, hist) {
			return false
		}
	}
	return true
}

func historyIDs(proc *brb.Process) map[identity.Actor][]ids.ID {
	out := make(map[identity.Actor][]ids.ID)
	for _, source := range proc.HistorySources() {
		for _, entry := range proc.History(source) {
			out[source] = append(out[source], entry.Msg.ID())
		}
	}
	return out
}

func historiesEqual(a, b map[identity.Actor][]ids.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for source, aIDs := range a {
		bIDs, ok := b[source]
		if !ok || len(aIDs) != len(bIDs) {
			return false
		}
		for i := range aIDs {
			if aIDs[i] != bIDs[i] {
				return false
			}
		}
	}
	return true
}

// Bootstrap builds a network of [numProcs] processes: the first is the
// genesis member and each other joins through a voted reconfiguration.
func Bootstrap(numProcs int, newDT datatype.New) *Network {
	n := NewNetwork()
	genesis := n.InitProcess(newDT)
	n.Proc(genesis).ForceJoin(genesis)

	for i := 1; i < numProcs; i++ {
		actor := n.InitProcess(newDT)
		n.Proc(actor).ForceJoin(genesis)
		packets, err := n.Proc(genesis).RequestMembership(actor)
		if err != nil {
			panic(err)
		}
		n.RunPacketsToCompletion(packets)
		n.AntiEntropy()
	}
	return n
}
