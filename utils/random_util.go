package utils

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func GetUUID() string {
	u1, err := uuid.NewUUID()
	if err != nil {
		logrus.Fatalf("generate uuid fail, err = %v", err)
	}
	return u1.String()
}
