package vost

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/internal/gitwrap"
	"github.com/mhalle/vost/oid"
	"github.com/mhalle/vost/refs"
	"github.com/mhalle/vost/tree"
	"github.com/mhalle/vost/vosterr"
)

// commitChanges is the shared commit protocol of spec §4.5.1, used by
// every write family (single writes, Apply/Remove/Rename/Move, and
// Batch.Commit).
func (snap Snapshot) commitChanges(changes []tree.Change, userMessage, op string) (Snapshot, error) {
	if !snap.writable {
		return Snapshot{}, vosterr.New(vosterr.PermissionDenied).WithPath(snap.refName)
	}
	s := snap.store
	full := refs.BranchPrefix + snap.refName

	var result Snapshot
	err := s.withLock(func() error {
		cur, ok, err := s.repo.ResolveRef(full)
		if err != nil {
			return vosterr.Wrap(err, vosterr.ObjectStoreError, snap.refName)
		}
		if !ok || cur != snap.commitOID {
			return vosterr.New(vosterr.StaleSnapshot).WithPath(snap.refName)
		}

		report := classifyChanges(s.repo, snap.treeOID, changes)

		newTree, err := tree.Rebuild(s.repo, snap.treeOID, changes)
		if err != nil {
			return vosterr.Wrap(err, vosterr.ObjectStoreError, snap.refName)
		}
		if newTree == snap.treeOID {
			result = snap
			return nil
		}

		message := autoMessage(userMessage, report, op)
		if !strings.HasSuffix(message, "\n") {
			message += "\n"
		}

		sig := s.gitSignature()
		commitOID, err := s.repo.WriteCommit(gitwrap.Commit{
			Tree: newTree, Parents: []oid.OID{snap.commitOID},
			Author: sig, Committer: sig, Message: message,
		})
		if err != nil {
			return vosterr.Wrap(err, vosterr.ObjectStoreError, snap.refName)
		}
		if err := s.repo.WriteRef(full, commitOID, snap.commitOID, false, "commit: "+message); err != nil {
			return err
		}

		next, err := newSnapshot(s, commitOID, snap.refName, true)
		if err != nil {
			return err
		}
		next.report = report
		result = next
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return result, nil
}

// classifyChanges builds the ChangeReport §4.5.1 step 2 describes:
// add if no prior entry, update if the prior (oid, mode) differs,
// skipped if identical, delete if the change removes an existing
// entry.
func classifyChanges(repo *gitwrap.Repository, baseTree oid.OID, changes []tree.Change) *ChangeReport {
	report := &ChangeReport{}
	for _, c := range changes {
		isDelete := c.Mode == 0 && c.OID == oid.Zero
		prior, err := tree.EntryAt(repo, baseTree, c.Path)
		existed := err == nil

		if isDelete {
			if existed {
				ft, _ := filemode.FromMode(prior.Mode)
				report.Delete = append(report.Delete, FileEntry{Path: c.Path, Type: ft})
			}
			continue
		}
		ft, _ := filemode.FromMode(c.Mode)
		switch {
		case !existed:
			report.Add = append(report.Add, FileEntry{Path: c.Path, Type: ft})
		case prior.Mode != c.Mode || prior.OID != c.OID:
			report.Update = append(report.Update, FileEntry{Path: c.Path, Type: ft})
		}
	}
	return report
}

// autoMessage generates a commit message when userMessage is empty,
// and expands {default}/{add_count}/{update_count}/{delete_count}
// placeholders in a caller-supplied template otherwise (spec §4.5.1
// step 3).
func autoMessage(userMessage string, report *ChangeReport, op string) string {
	deflt := defaultSummary(report, op)
	if userMessage == "" {
		return deflt
	}
	msg := userMessage
	msg = strings.ReplaceAll(msg, "{default}", deflt)
	msg = strings.ReplaceAll(msg, "{add_count}", strconv.Itoa(len(report.Add)))
	msg = strings.ReplaceAll(msg, "{update_count}", strconv.Itoa(len(report.Update)))
	msg = strings.ReplaceAll(msg, "{delete_count}", strconv.Itoa(len(report.Delete)))
	return msg
}

func defaultSummary(report *ChangeReport, op string) string {
	total := len(report.Add) + len(report.Update) + len(report.Delete)
	switch total {
	case 0:
		return "(no-op) " + op
	case 1:
		if len(report.Add) == 1 {
			return "+ " + report.Add[0].Path
		}
		if len(report.Update) == 1 {
			return "~ " + report.Update[0].Path
		}
		return "- " + report.Delete[0].Path
	default:
		return fmt.Sprintf("Batch %s: +%d ~%d -%d", op, len(report.Add), len(report.Update), len(report.Delete))
	}
}
