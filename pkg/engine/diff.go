package engine

import (
	"bytes"
	"sort"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/oneconcern/datapush/pkg/model"
)

// Diff computes the delta turning the "from" stamp into the "to" stamp.
//
// Entries of both stamps are walked in key order. Adds carry the hash of the entry they replace in "from", if any.
func Diff(to, from model.Stamp) model.Delta {
	delta := model.Delta{
		Adds:        []model.AddEntry{},
		Removes:     []model.RemoveEntry{},
		MetaAdds:    []string{},
		MetaRemoves: []string{},
	}

	toIter := indexOf(to.Entries).Root().Iterator()
	fromIter := indexOf(from.Entries).Root().Iterator()

	toKey, toVal, toOK := toIter.Next()
	fromKey, fromVal, fromOK := fromIter.Next()

	for toOK || fromOK {
		var cmp int
		switch {
		case !fromOK:
			cmp = -1
		case !toOK:
			cmp = 1
		default:
			cmp = bytes.Compare(toKey, fromKey)
		}

		switch {
		case cmp < 0:
			delta.Adds = append(delta.Adds, model.AddEntry{Path: string(toKey), Hash: toVal.(string)})
			toKey, toVal, toOK = toIter.Next()

		case cmp > 0:
			delta.Removes = append(delta.Removes, model.RemoveEntry{Path: string(fromKey), Hash: fromVal.(string)})
			fromKey, fromVal, fromOK = fromIter.Next()

		default:
			if toHash, fromHash := toVal.(string), fromVal.(string); toHash != fromHash {
				delta.Adds = append(delta.Adds, model.AddEntry{Path: string(toKey), Hash: toHash, Previous: fromHash})
			}
			toKey, toVal, toOK = toIter.Next()
			fromKey, fromVal, fromOK = fromIter.Next()
		}
	}

	delta.MetaAdds, delta.MetaRemoves = diffSets(to.Meta, from.Meta)
	return delta
}

func indexOf(entries map[string]string) *iradix.Tree {
	txn := iradix.New().Txn()
	for pth, hash := range entries {
		txn.Insert([]byte(pth), hash)
	}
	return txn.Commit()
}

// diffSets yields the sorted elements only in "to", then those only in "from"
func diffSets(to, from []string) ([]string, []string) {
	inFrom := make(map[string]struct{}, len(from))
	for _, id := range from {
		inFrom[id] = struct{}{}
	}
	inTo := make(map[string]struct{}, len(to))
	for _, id := range to {
		inTo[id] = struct{}{}
	}

	adds := make([]string, 0, len(to))
	for id := range inTo {
		if _, ok := inFrom[id]; !ok {
			adds = append(adds, id)
		}
	}
	removes := make([]string, 0, len(from))
	for id := range inFrom {
		if _, ok := inTo[id]; !ok {
			removes = append(removes, id)
		}
	}
	sort.Strings(adds)
	sort.Strings(removes)
	return adds, removes
}
