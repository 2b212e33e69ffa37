package utils

import (
	"github.com/emirpasic/gods/sets"
	"github.com/emirpasic/gods/sets/hashset"
)

func List2set[T any](list []T) sets.Set {
	set := hashset.New()
	for _, value := range list {
		set.Add(value)
	}
	return set
}

// Difference 返回在list中但不在exclude中的元素，保持list中的顺序
func Difference[T any](list []T, exclude []T) []T {
	set := List2set(exclude)
	answer := make([]T, 0, len(list))
	for _, value := range list {
		if !set.Contains(value) {
			answer = append(answer, value)
		}
	}
	return answer
}
