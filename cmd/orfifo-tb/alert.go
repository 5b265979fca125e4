// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-lpc/orfifo/resdb"
	mail "gopkg.in/gomail.v2"
)

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = split(os.Getenv("MAIL_TGTS"))
)

func alertMail(runs []resdb.Run) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := newAlert(alertMailUsr, alertMailTgts, runs)

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func newAlert(from string, tgts []string, runs []resdb.Run) *mail.Message {
	var failed int
	for _, run := range runs {
		if run.Verdict != resdb.Pass {
			failed++
		}
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("Bcc", tgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[orfifo-tb] %d/%d runs failed", failed, len(runs)))
	msg.SetBody("text/plain", alertBody(runs))
	return msg
}

func alertBody(runs []resdb.Run) string {
	o := new(strings.Builder)
	for _, run := range runs {
		fmt.Fprintf(o, "depth=%d: %s", run.Depth, run.Verdict)
		if run.Error != "" {
			fmt.Fprintf(o, ": %s", run.Error)
		}
		o.WriteString("\n")
		for _, res := range run.Results {
			fmt.Fprintf(o, "  vector %v: got=%d, want=%d\n", res.Vector, res.Got, res.Want)
		}
	}
	return o.String()
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("could not parse %q: %+v", s, err)
		return 0
	}
	return v
}

func split(s string) []string {
	var vs []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		vs = append(vs, v)
	}
	return vs
}
