package main

import (
	"testing"

	"example.com/nbsgate/internal/nbs"
)

func TestScanTally(t *testing.T) {
	tally := newScanTally()
	dataFH := &nbs.FrameHeader{Command: nbs.CmdData, Datastream: 1}
	frame := make([]byte, 100)

	tally.add(frame, dataFH, &nbs.ProductDefinitionHeader{ProdSeqNum: 1, BlockNum: 0})
	tally.add(frame, dataFH, &nbs.ProductDefinitionHeader{ProdSeqNum: 1, BlockNum: 1})
	tally.add(frame, dataFH, &nbs.ProductDefinitionHeader{ProdSeqNum: 2, BlockNum: 0})
	tally.add(make([]byte, 48), &nbs.FrameHeader{Command: nbs.CmdTime}, nil)

	cmds, streams := tally.summarize()
	if len(cmds) != 2 {
		t.Fatalf("summarized %d commands, want 2", len(cmds))
	}
	for _, cc := range cmds {
		switch cc.Command {
		case "3 (data transfer)":
			if cc.Frames != 3 || cc.Bytes != 300 {
				t.Errorf("data command = %+v", cc)
			}
		case "5 (time sync)":
			if cc.Frames != 1 || cc.Bytes != 48 {
				t.Errorf("time command = %+v", cc)
			}
		default:
			t.Errorf("unexpected command %q", cc.Command)
		}
	}

	if len(streams) != 1 {
		t.Fatalf("summarized %d datastreams, want 1", len(streams))
	}
	if streams[0].Frames != 3 || streams[0].Products != 2 {
		t.Errorf("datastream = %+v", streams[0])
	}
}

func TestCommandLabel(t *testing.T) {
	tests := []struct {
		command uint8
		want    string
	}{
		{nbs.CmdData, "3 (data transfer)"},
		{nbs.CmdTime, "5 (time sync)"},
		{nbs.CmdTest, "10 (test)"},
		{99, "99 (unknown)"},
	}
	for _, tt := range tests {
		if got := commandLabel(tt.command); got != tt.want {
			t.Errorf("commandLabel(%d) = %q, want %q", tt.command, got, tt.want)
		}
	}
}
